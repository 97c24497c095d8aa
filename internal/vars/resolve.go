package vars

import (
	"sort"

	"github.com/vk/promptgrid/internal/script"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Origin names for values that do not come from a Source.
const (
	OriginDefault = "default"
	OriginInput   = "input"
)

// Bindings is the resolved variable table of one run.
type Bindings struct {
	Values  map[string]cty.Value
	Origins map[string]string
	Types   map[string]cty.Type
	Input   *Input
}

// Resolve binds every declared variable of s. For each variable the first
// source that defines it wins, then the declared default. A variable that
// only the shared input supplies, in every entry, is bound to an unknown
// value and takes its real value per instance.
func Resolve(s *script.Script, input *Input, sources ...Source) (*Bindings, error) {
	b := &Bindings{
		Values:  make(map[string]cty.Value, len(s.Variables)),
		Origins: make(map[string]string, len(s.Variables)),
		Types:   make(map[string]cty.Type, len(s.Variables)),
		Input:   input,
	}

	var missing []string
	for _, v := range s.Variables {
		val, origin, ok := lookup(v, sources)
		switch {
		case ok:
		case v.HasDefault:
			val, origin = v.Default, OriginDefault
		case input.DefinesEverywhere(v.Name):
			val, origin = cty.DynamicVal, OriginInput
		default:
			missing = append(missing, v.Name)
			continue
		}
		b.Values[v.Name] = coerce(val, v.Type)
		b.Origins[v.Name] = origin
		b.Types[v.Name] = v.Type
	}

	if len(missing) > 0 {
		return nil, &UnresolvedVariableError{Names: missing}
	}
	return b, nil
}

func lookup(v *script.Variable, sources []Source) (cty.Value, string, bool) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if val, ok := src.Lookup(v.Name); ok {
			return val, src.Name(), true
		}
	}
	return cty.NilVal, "", false
}

// coerce converts val to the declared type when it can. Values that do not
// convert are kept as-is and reported by the validator.
func coerce(val cty.Value, ty cty.Type) cty.Value {
	if ty == cty.DynamicPseudoType || !val.IsKnown() {
		return val
	}
	if converted, err := convert.Convert(val, ty); err == nil {
		return converted
	}
	return val
}

// Lookup returns the bound value of name.
func (b *Bindings) Lookup(name string) (cty.Value, bool) {
	v, ok := b.Values[name]
	return v, ok
}

// Names returns the bound variable names in lexical order.
func (b *Bindings) Names() []string {
	names := make([]string, 0, len(b.Values))
	for n := range b.Values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// VarObject returns the value of the `var` expression root. overrides, if
// any, replace the bound values of declared variables.
func (b *Bindings) VarObject(overrides map[string]cty.Value) cty.Value {
	attrs := make(map[string]cty.Value, len(b.Values))
	for k, v := range b.Values {
		attrs[k] = v
	}
	for k, v := range overrides {
		if _, declared := b.Values[k]; declared {
			attrs[k] = coerce(v, b.typeOf(k))
		}
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

func (b *Bindings) typeOf(name string) cty.Type {
	if ty, ok := b.Types[name]; ok {
		return ty
	}
	return cty.DynamicPseudoType
}
