// Package netcdfio adapts github.com/ctessum/cdf's NetCDF classic
// reader/writer to the ncagg.GranuleReader and ncagg.GranuleWriter
// interfaces. It is the only package in the module that imports cdf
// directly; the rest of the engine is agnostic to the on-disk format.
package netcdfio
