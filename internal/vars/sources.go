package vars

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// EnvPrefix is prepended to variable names when they are looked up in the
// environment.
const EnvPrefix = "PROMPTGRID_VAR_"

// Source supplies values for some variables.
type Source interface {
	Name() string
	Lookup(name string) (cty.Value, bool)
}

// MapSource is a Source backed by a fixed set of values.
type MapSource struct {
	name   string
	values map[string]cty.Value
}

// NewMapSource returns a Source named name that supplies values.
func NewMapSource(name string, values map[string]cty.Value) *MapSource {
	if values == nil {
		values = map[string]cty.Value{}
	}
	return &MapSource{name: name, values: values}
}

func (s *MapSource) Name() string { return s.name }

func (s *MapSource) Lookup(name string) (cty.Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Keys returns the supplied variable names in lexical order.
func (s *MapSource) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewFlagSource parses `name=value` pairs given on the command line. Values
// that are valid JSON keep their JSON type, everything else is a string.
func NewFlagSource(pairs []string) (*MapSource, error) {
	values := make(map[string]cty.Value, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable override %q: expected name=value", pair)
		}
		values[name] = parseScalar(raw)
	}
	return NewMapSource("flag", values), nil
}

// NewJSONSource decodes a JSON object; each top-level key becomes one binding.
func NewJSONSource(name string, data []byte) (*MapSource, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return NewMapSource(name, obj.AsValueMap()), nil
}

// NewJSONFileSource reads a structured override file.
func NewJSONFileSource(path string) (*MapSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable file: %w", err)
	}
	return NewJSONSource(path, data)
}

// NewEnvSource collects PROMPTGRID_VAR_* values. environ takes precedence
// over dotenv, which usually comes from ReadDotenv.
func NewEnvSource(environ []string, dotenv map[string]string) *MapSource {
	values := map[string]cty.Value{}
	for key, raw := range dotenv {
		if name, ok := strings.CutPrefix(key, EnvPrefix); ok && name != "" {
			values[name] = parseScalar(raw)
		}
	}
	for _, kv := range environ {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if name, ok := strings.CutPrefix(key, EnvPrefix); ok && name != "" {
			values[name] = parseScalar(raw)
		}
	}
	return NewMapSource("env", values)
}

// ReadDotenv reads a .env file without touching the process environment. A
// missing file yields an empty map.
func ReadDotenv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return values, nil
}

func parseScalar(raw string) cty.Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if ty, err := ctyjson.ImpliedType([]byte(trimmed)); err == nil {
			if v, err := ctyjson.Unmarshal([]byte(trimmed), ty); err == nil {
				return v
			}
		}
	}
	return cty.StringVal(raw)
}

func decodeObject(data []byte) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid JSON: %w", err)
	}
	if !ty.IsObjectType() {
		return cty.NilVal, fmt.Errorf("expected a JSON object at the top level, got %s", ty.FriendlyName())
	}
	v, err := ctyjson.Unmarshal(data, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}
