package plan

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

var errPerEntry = errors.New("value is only known per shared input entry")

// AsString converts v to a Go string.
func AsString(v cty.Value) (string, error) {
	if err := usable(v); err != nil {
		return "", err
	}
	s, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("%s is not a string", Describe(v))
	}
	return s.AsString(), nil
}

// AsFloat converts v to a float64.
func AsFloat(v cty.Value) (float64, error) {
	n, err := asNumber(v)
	if err != nil {
		return 0, err
	}
	f, _ := n.AsBigFloat().Float64()
	return f, nil
}

// AsInt converts v to an int64, rejecting fractional values.
func AsInt(v cty.Value) (int64, error) {
	n, err := asNumber(v)
	if err != nil {
		return 0, err
	}
	var i int64
	if err := gocty.FromCtyValue(n, &i); err != nil {
		return 0, fmt.Errorf("%s is not a whole number", Describe(v))
	}
	return i, nil
}

func asNumber(v cty.Value) (cty.Value, error) {
	if err := usable(v); err != nil {
		return cty.NilVal, err
	}
	n, err := convert.Convert(v, cty.Number)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%s is not a number", Describe(v))
	}
	return n, nil
}

func usable(v cty.Value) error {
	if !v.IsWhollyKnown() {
		return errPerEntry
	}
	if v.IsNull() {
		return errors.New("value is null")
	}
	return nil
}

// Describe renders a value for error messages.
func Describe(v cty.Value) string {
	switch {
	case !v.IsKnown():
		return "unknown value"
	case v.IsNull():
		return "null"
	case v.Type() == cty.String:
		return fmt.Sprintf("%q", v.AsString())
	case v.Type() == cty.Number:
		return v.AsBigFloat().Text('g', -1)
	case v.Type() == cty.Bool:
		if v.True() {
			return "true"
		}
		return "false"
	default:
		return v.Type().FriendlyName()
	}
}
