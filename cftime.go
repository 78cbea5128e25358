package ncagg

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cfUnits is a parsed "<unit> since <reference>" CF-convention time units
// string, e.g. "seconds since 1980-01-06T00:00:00Z", as found in the
// index_by variable's "units" attribute.
type cfUnits struct {
	scale time.Duration
	epoch time.Time
}

func parseCFUnits(units string) (cfUnits, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return cfUnits{}, fmt.Errorf("ncagg: %q is not a CF time units string", units)
	}
	var scale time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "second", "seconds", "s", "sec", "secs":
		scale = time.Second
	case "minute", "minutes", "min", "mins":
		scale = time.Minute
	case "hour", "hours", "h", "hr", "hrs":
		scale = time.Hour
	case "day", "days", "d":
		scale = 24 * time.Hour
	default:
		return cfUnits{}, fmt.Errorf("ncagg: unsupported CF time unit %q", parts[0])
	}
	ref := strings.TrimSpace(parts[1])
	epoch, err := parseFlexibleTime(ref)
	if err != nil {
		return cfUnits{}, fmt.Errorf("ncagg: bad CF reference time %q: %w", ref, err)
	}
	return cfUnits{scale: scale, epoch: epoch}, nil
}

func parseFlexibleTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no matching layout for %q", s)
}

// toTime converts a numeric value expressed in u's units into an absolute time.
func (u cfUnits) toTime(v float64) time.Time {
	return u.epoch.Add(time.Duration(v * float64(u.scale)))
}

// fromTime converts an absolute time into u's numeric units.
func (u cfUnits) fromTime(t time.Time) float64 {
	return float64(t.Sub(u.epoch)) / float64(u.scale)
}

// dateBound is a parsed "TYYYY[MM[DD[HH[MM]]]]" bound expression.
type dateBound struct {
	t     time.Time
	field string // "year", "month", "day", "hour", "minute": least-significant component supplied
}

// parseDateBound parses the TYYYY[MM[DD[HH[MM]]]] expression accepted for
// UDC min/max bounds.
func parseDateBound(s string) (dateBound, error) {
	if !strings.HasPrefix(s, "T") {
		return dateBound{}, fmt.Errorf("ncagg: date bound %q must start with 'T'", s)
	}
	digits := s[1:]
	year, month, day, hour, minute := 0, 1, 1, 0, 0
	field := "year"
	switch len(digits) {
	case 4, 6, 8, 10, 12:
	default:
		return dateBound{}, fmt.Errorf("ncagg: date bound %q has an invalid length", s)
	}
	parseInt := func(sub string) (int, error) { return strconv.Atoi(sub) }
	var err error
	if year, err = parseInt(digits[0:4]); err != nil {
		return dateBound{}, fmt.Errorf("ncagg: bad year in date bound %q: %w", s, err)
	}
	if len(digits) >= 6 {
		if month, err = parseInt(digits[4:6]); err != nil {
			return dateBound{}, fmt.Errorf("ncagg: bad month in date bound %q: %w", s, err)
		}
		field = "month"
	}
	if len(digits) >= 8 {
		if day, err = parseInt(digits[6:8]); err != nil {
			return dateBound{}, fmt.Errorf("ncagg: bad day in date bound %q: %w", s, err)
		}
		field = "day"
	}
	if len(digits) >= 10 {
		if hour, err = parseInt(digits[8:10]); err != nil {
			return dateBound{}, fmt.Errorf("ncagg: bad hour in date bound %q: %w", s, err)
		}
		field = "hour"
	}
	if len(digits) >= 12 {
		if minute, err = parseInt(digits[10:12]); err != nil {
			return dateBound{}, fmt.Errorf("ncagg: bad minute in date bound %q: %w", s, err)
		}
		field = "minute"
	}
	return dateBound{t: time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), field: field}, nil
}

// increment returns the bound's time advanced by one unit of its
// least-significant supplied component, used to infer a missing max from a
// given min.
func (b dateBound) increment() time.Time {
	switch b.field {
	case "year":
		return b.t.AddDate(1, 0, 0)
	case "month":
		return b.t.AddDate(0, 1, 0)
	case "day":
		return b.t.AddDate(0, 0, 1)
	case "hour":
		return b.t.Add(time.Hour)
	case "minute":
		return b.t.Add(time.Minute)
	default:
		return b.t
	}
}

// decrement returns the bound's time set back by one unit of its
// least-significant supplied component, the mirror of increment used to
// infer a missing min from a given max: the implied period is the one
// unit immediately preceding the max bound, not one unit past it.
func (b dateBound) decrement() time.Time {
	switch b.field {
	case "year":
		return b.t.AddDate(-1, 0, 0)
	case "month":
		return b.t.AddDate(0, -1, 0)
	case "day":
		return b.t.AddDate(0, 0, -1)
	case "hour":
		return b.t.Add(-time.Hour)
	case "minute":
		return b.t.Add(-time.Minute)
	default:
		return b.t
	}
}
