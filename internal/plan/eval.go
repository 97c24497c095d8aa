package plan

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/vk/promptgrid/internal/vars"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions are available to every step expression.
var functions = map[string]function.Function{
	"coalesce":  stdlib.CoalesceFunc,
	"format":    stdlib.FormatFunc,
	"join":      stdlib.JoinFunc,
	"lower":     stdlib.LowerFunc,
	"max":       stdlib.MaxFunc,
	"min":       stdlib.MinFunc,
	"replace":   stdlib.ReplaceFunc,
	"title":     stdlib.TitleFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"upper":     stdlib.UpperFunc,
}

// Expression roots.
const (
	rootVar   = "var"
	rootEach  = "each"
	rootInput = "input"
)

// Roots lists the names a step expression may start with.
var Roots = []string{rootVar, rootEach, rootInput}

func baseContext(b *vars.Bindings) *hcl.EvalContext {
	variables := map[string]cty.Value{
		rootVar: b.VarObject(nil),
	}
	if b.Input != nil {
		variables[rootInput] = b.Input.Value()
	}
	return &hcl.EvalContext{Variables: variables, Functions: functions}
}

// entryContext is the context of one instance of an iterating step. When the
// entry value is an object or map its fields override the bound variables.
func entryContext(b *vars.Bindings, key string, value cty.Value) *hcl.EvalContext {
	var overrides map[string]cty.Value
	if value.IsKnown() && !value.IsNull() && (value.Type().IsObjectType() || value.Type().IsMapType()) && value.LengthInt() > 0 {
		overrides = value.AsValueMap()
	}
	variables := map[string]cty.Value{
		rootVar: b.VarObject(overrides),
		rootEach: cty.ObjectVal(map[string]cty.Value{
			"key":   cty.StringVal(key),
			"value": value,
		}),
	}
	if b.Input != nil {
		variables[rootInput] = b.Input.Value()
	}
	return &hcl.EvalContext{Variables: variables, Functions: functions}
}
