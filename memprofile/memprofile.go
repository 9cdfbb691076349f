// Package memprofile renders a memory space's mapping layout as a
// pprof profile (gaps are not included), so the existing pprof toolchain (go tool pprof, the web
// UI) can be pointed at a process's address space the same way it is
// pointed at a heap profile. The shape here follows the profile.proto
// field semantics the library documents (SampleType/Sample/Location/
// Function/Mapping).
package memprofile

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"

	"memspace/abi"
	"memspace/physalloc"
	"memspace/region"
	"memspace/residence"
)

// spaceMappings is the minimal view memprofile needs from a memory
// space, satisfied by *memspace.Space without importing it directly
// (memspace would otherwise need to import memprofile back for a
// convenience method, which this package avoids by taking the iterator
// as a parameter instead).
type spaceMappings interface {
	Mappings(fn func(region.Mapping) bool)
}

// Build renders every mapping in sp as one pprof sample valued by page
// count, labeled with its residence kind and permission flags, with
// Location addresses set to each mapping's base so pprof's address-space
// view lines the samples up by virtual address.
func Build(sp spaceMappings) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "pages", Unit: "count"},
			{Type: "space", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     1,
	}

	fn := &profile.Function{ID: 1, Name: "mapping"}
	p.Function = []*profile.Function{fn}

	var nextID uint64 = 1
	sp.Mappings(func(m region.Mapping) bool {
		nextID++
		loc := &profile.Location{
			ID:      nextID,
			Address: uint64(m.Begin),
			Line:    []profile.Line{{Function: fn}},
		}
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(m.Size), int64(m.Size) * physalloc.PageSize},
			Label: map[string][]string{
				"residence": {kindName(m.Residence.Kind())},
				"flags":     {flagString(m.Flags)},
				"begin":     {fmt.Sprintf("%#x", uint64(m.Begin))},
			},
		})
		return true
	})
	return p
}

// Write renders sp as a gzip-compressed pprof profile to w, per
// profile.Profile.Write.
func Write(w io.Writer, sp spaceMappings) error {
	return Build(sp).Write(w)
}

func kindName(k residence.Kind) string {
	switch k {
	case residence.Anonymous:
		return "anonymous"
	case residence.Static:
		return "static"
	case residence.File:
		return "file"
	case residence.Swap:
		return "swap"
	default:
		return "unknown"
	}
}

func flagString(f abi.Flag) string {
	s := ""
	add := func(has abi.Flag, c string) {
		if f.Has(has) {
			s += c
		} else {
			s += "-"
		}
	}
	add(abi.WRITE, "w")
	add(abi.EXEC, "x")
	add(abi.USER, "u")
	add(abi.SHARED, "s")
	add(abi.NOLAZY, "n")
	return s
}
