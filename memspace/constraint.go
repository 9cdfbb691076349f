package memspace

import (
	"memspace/kerr"
	"memspace/physalloc"
	"memspace/region"
)

type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintFixed
	constraintHint
)

// Constraint selects how Map picks the address for a new mapping: any
// gap large enough, a fixed address, or a preferred hint.
type Constraint struct {
	kind constraintKind
	addr region.Addr
}

// AnyAddress lets Map choose any gap large enough.
func AnyAddress() Constraint { return Constraint{kind: constraintNone} }

// FixedAt requires the mapping to begin at exactly addr, unmapping
// whatever previously occupied that range first. Fixed is the only
// constraint allowed to place a mapping outside of any pre-existing gap.
func FixedAt(addr region.Addr) Constraint { return Constraint{kind: constraintFixed, addr: addr} }

// HintAt asks Map to prefer addr if a gap there is large enough, falling
// back to AnyAddress semantics otherwise.
func HintAt(addr region.Addr) Constraint { return Constraint{kind: constraintHint, addr: addr} }

// validateConstraint checks a constraint before Map acts on it: a Fixed
// target must not exceed the process's address ceiling, and both Fixed
// and Hint targets must be page-aligned.
func validateConstraint(cfg Config, c Constraint) error {
	switch c.kind {
	case constraintFixed:
		if c.addr > cfg.ProcessEnd || uintptr(c.addr)%physalloc.PageSize != 0 {
			return kerr.ErrInvalidArgument
		}
	case constraintHint:
		if uintptr(c.addr)%physalloc.PageSize != 0 {
			return kerr.ErrInvalidArgument
		}
	}
	return nil
}
