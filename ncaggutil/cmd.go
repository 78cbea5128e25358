// Package ncaggutil wires ncagg's engine into a cobra/viper command line:
// a flat options table binds cobra flags to a shared viper instance,
// which in turn resolves environment variables and the --config flag.
package ncaggutil

import (
	"context"
	"fmt"
	"os"

	"github.com/5tefan/ncagg"
	"github.com/5tefan/ncagg/netcdfio"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Cfg holds the CLI's own configuration (flags, environment, config file
// path) — distinct from ncagg.Config, the aggregation product definition,
// which is always loaded through ncagg.LoadConfig from strict JSON, never
// through viper's loose unmarshaling, per the config grammar's requirement
// that key order and unknown-field rejection be preserved exactly.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	Cfg = viper.New()
	Cfg.SetEnvPrefix("NCAGG")
	Cfg.AutomaticEnv()

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name:       "config",
			usage:      "config specifies the path to the product configuration JSON file.",
			shorthand:  "c",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags(), planCmd.Flags()},
		},
		{
			name:       "output",
			usage:      "output specifies the path to write the aggregated file to.",
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name:       "workers",
			usage:      "workers bounds how many input granules are inspected concurrently while gathering descriptors. 0 means GOMAXPROCS.",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags(), planCmd.Flags()},
		},
		{
			name:       "loglevel",
			usage:      "loglevel sets the logging verbosity: panic, fatal, error, warn, info, debug or trace.",
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	for _, option := range options {
		for _, set := range option.flagsets {
			switch v := option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, v, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, v, option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, v, option.usage)
				} else {
					set.IntP(option.name, option.shorthand, v, option.usage)
				}
			default:
				panic("ncaggutil: unsupported option default type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(versionCmd)
	Root.AddCommand(aggregateCmd)
	Root.AddCommand(planCmd)
	Root.AddCommand(initConfigCmd)
}

// Root is the ncagg CLI's top-level command.
var Root = &cobra.Command{
	Use:   "ncagg",
	Short: "A NetCDF granule aggregation engine.",
	Long: `ncagg concatenates a time-ordered series of NetCDF granules along
their unlimited dimensions into one product file, filling data gaps,
trimming overlaps, and reducing global attributes according to a product
configuration.

Configuration can be set via the --config flag pointing to a product
configuration JSON file, via command line flags, or via environment
variables prefixed NCAGG_.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logrus.ParseLevel(Cfg.GetString("loglevel"))
		if err != nil {
			return fmt.Errorf("ncagg: invalid --loglevel: %w", err)
		}
		logrus.SetLevel(lvl)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print the version number",
	DisableAutoGenTag: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ncagg v%s\n", ncagg.Version)
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [granule ...]",
	Short: "Aggregate a series of input granules into one output file.",
	Long: `aggregate reads the product configuration named by --config,
plans and evaluates an aggregation over the given input granules (in the
order given, or sorted by their index_by value per the configuration), and
writes the result atomically to --output.`,
	Args:              cobra.MinimumNArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProductConfig(Cfg.GetString("config"))
		if err != nil {
			return err
		}
		cfg.Workers = Cfg.GetInt("workers")

		output := Cfg.GetString("output")
		if output == "" {
			return fmt.Errorf("ncagg: --output is required")
		}

		log := logrus.StandardLogger()
		return ncagg.Aggregate(context.Background(), ncagg.AggregateOptions{
			Config:       cfg,
			InputPaths:   args,
			OutputPath:   output,
			Open:         netcdfio.Open,
			CreateWriter: netcdfio.Create,
			Workers:      cfg.Workers,
			Log:          log,
		})
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [granule ...]",
	Short: "Print the aggregation plan for a series of input granules without writing output.",
	Long: `plan runs descriptor gathering and planning over the given input
granules and prints, for each unlimited dimension, the resulting sequence
of input slices and fill segments, without evaluating or writing anything.
Useful for inspecting how gaps and overlaps in a given input set will be
handled before committing to a full run.`,
	Args:              cobra.MinimumNArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadProductConfig(Cfg.GetString("config"))
		if err != nil {
			return err
		}

		descs, err := ncagg.BuildDescriptors(context.Background(), cfg, args, netcdfio.Open, Cfg.GetInt("workers"))
		if err != nil {
			return err
		}
		plan, err := ncagg.BuildPlan(cfg, descs, netcdfio.Open)
		if err != nil {
			return err
		}
		for dim, nodes := range plan {
			cmd.Printf("dimension %s: %d nodes, %d total records\n", dim, len(nodes), plan.PlanSize(dim))
			for i, n := range nodes {
				cmd.Printf("  [%d] %T size=%d\n", i, n, n.SizeAlong(dim))
			}
		}
		return nil
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config <sample-granule>",
	Short: "Derive a default product configuration from one sample granule.",
	Long: `init-config opens the given sample granule, builds a default
product configuration from its schema (every dimension and variable as
found, "first" as the default global attribute strategy except for a few
well-known attribute names), and prints it as JSON to stdout for the user
to inspect and edit before using it with aggregate.`,
	Args:              cobra.ExactArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := netcdfio.Open(args[0])
		if err != nil {
			return err
		}
		defer r.Close()
		schema, err := r.Schema(cmd.Context())
		if err != nil {
			return err
		}
		cfg := ncagg.FromSample(schema)
		return ncagg.SaveConfig(cmd.OutOrStdout(), cfg)
	},
}

func loadProductConfig(path string) (*ncagg.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("ncagg: --config is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncagg: opening config %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := ncagg.LoadConfig(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
