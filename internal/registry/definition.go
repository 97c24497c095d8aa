package registry

import (
	"fmt"
	"strconv"
)

// Bounds is an inclusive numeric range; a nil end is unbounded.
type Bounds struct {
	Min *float64
	Max *float64
}

// Contains reports whether v lies within the bounds.
func (b Bounds) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

func (b Bounds) String() string {
	format := func(f *float64) string {
		return strconv.FormatFloat(*f, 'f', -1, 64)
	}
	switch {
	case b.Min != nil && b.Max != nil:
		return fmt.Sprintf("between %s and %s", format(b.Min), format(b.Max))
	case b.Min != nil:
		return fmt.Sprintf("at least %s", format(b.Min))
	case b.Max != nil:
		return fmt.Sprintf("at most %s", format(b.Max))
	default:
		return "unbounded"
	}
}

// Definition describes one adapter declared in a manifest.
type Definition struct {
	Name        string
	Protocol    string
	Path        string
	Description string
	Samplers    []string
	Bounds      map[string]Bounds
	Source      string
}

// BoundsFor returns the declared bounds of a payload field.
func (d *Definition) BoundsFor(field string) (Bounds, bool) {
	b, ok := d.Bounds[field]
	return b, ok
}

// AcceptsSampler reports whether name is allowed. An empty sampler list
// accepts anything.
func (d *Definition) AcceptsSampler(name string) bool {
	if len(d.Samplers) == 0 {
		return true
	}
	for _, s := range d.Samplers {
		if s == name {
			return true
		}
	}
	return false
}
