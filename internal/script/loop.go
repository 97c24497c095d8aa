// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file holds the parse-time checks for the for_each iteration source.
// Dynamic sources such as var.themes or input are only checked once the
// variable bindings of a run are known.
package script

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// parseForEach finds the "for_each" attribute and performs static type validation on it.
func parseForEach(attrs hcl.Attributes) (hcl.Expression, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	forEachAttr, exists := attrs["for_each"]
	if !exists {
		return nil, diags
	}

	// If the expression is a literal, we can validate its type.
	if len(forEachAttr.Expr.Variables()) == 0 {
		val, valDiags := forEachAttr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if valDiags.HasErrors() {
			return forEachAttr.Expr, diags
		}
		diags = append(diags, CheckForEachValue(val, forEachAttr.Expr.Range())...)
	}

	return forEachAttr.Expr, diags
}

// CheckForEachValue reports whether val can drive an iterating step: a map or
// object of entries, or a list, tuple or set of strings.
func CheckForEachValue(val cty.Value, rng hcl.Range) hcl.Diagnostics {
	invalid := func(detail string) hcl.Diagnostics {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid for_each value",
			Detail:   detail,
			Subject:  rng.Ptr(),
		}}
	}

	if val.IsNull() {
		return invalid("The for_each value must not be null.")
	}
	if !val.IsKnown() {
		return invalid("The for_each value depends on a value that is only known per entry.")
	}

	ty := val.Type()
	switch {
	case ty.IsMapType() || ty.IsObjectType():
		return nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		it := val.ElementIterator()
		for it.Next() {
			_, v := it.Element()
			if v.IsNull() || v.Type() != cty.String {
				return invalid("When using a list, tuple or set for for_each, all elements must be strings.")
			}
		}
		return nil
	default:
		return invalid("The for_each attribute must be a map, an object, or a list or set of strings.")
	}
}
