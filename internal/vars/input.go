package vars

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zclconf/go-cty/cty"
)

const inputSchemaURL = "schema://shared-input.json"

// inputSchemaJSON describes a shared input: a non-empty object whose values
// are objects of variable overrides.
const inputSchemaJSON = `{
  "type": "object",
  "minProperties": 1,
  "additionalProperties": {
    "type": "object"
  }
}`

var compiledInputSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(inputSchemaURL, strings.NewReader(inputSchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(inputSchemaURL)
})

// Entry is one named entry of a shared input.
type Entry struct {
	Key   string
	Value cty.Value
}

// Values returns the entry's fields.
func (e Entry) Values() map[string]cty.Value {
	if e.Value.LengthInt() == 0 {
		return map[string]cty.Value{}
	}
	return e.Value.AsValueMap()
}

// Input is a decoded shared input. Entries keep the order of the file.
type Input struct {
	Path    string
	Entries []Entry
}

// Len returns the number of entries.
func (in *Input) Len() int {
	if in == nil {
		return 0
	}
	return len(in.Entries)
}

// Value returns the input as an object keyed by entry name, the value of the
// `input` expression root.
func (in *Input) Value() cty.Value {
	if in.Len() == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(in.Entries))
	for _, e := range in.Entries {
		attrs[e.Key] = e.Value
	}
	return cty.ObjectVal(attrs)
}

// DefinesEverywhere reports whether every entry sets name.
func (in *Input) DefinesEverywhere(name string) bool {
	if in.Len() == 0 {
		return false
	}
	for _, e := range in.Entries {
		if !e.Value.Type().HasAttribute(name) {
			return false
		}
	}
	return true
}

// ParseInput validates and decodes shared input JSON.
func ParseInput(path string, data []byte) (*Input, error) {
	schema, err := compiledInputSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile shared input schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &InputError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	keys, raws, err := orderedEntries(data)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	in := &Input{Path: path, Entries: make([]Entry, 0, len(keys))}
	for _, key := range keys {
		obj, err := decodeObject(raws[key])
		if err != nil {
			return nil, &InputError{Path: path, Err: fmt.Errorf("entry %q: %w", key, err)}
		}
		in.Entries = append(in.Entries, Entry{Key: key, Value: obj})
	}
	return in, nil
}

// orderedEntries walks the top-level object and returns its keys in file
// order. A repeated key keeps its first position and its last value.
func orderedEntries(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.New("expected a JSON object")
	}

	var keys []string
	raws := map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, seen := raws[key]; !seen {
			keys = append(keys, key)
		}
		raws[key] = raw
	}
	return keys, raws, nil
}

// InputLoader reads shared input files and memoises them by path, size and
// modification time, so unchanged files are decoded once.
type InputLoader struct {
	cache *cache.Cache
}

// NewInputLoader returns a loader with an empty memo.
func NewInputLoader() *InputLoader {
	return &InputLoader{cache: cache.New(10*time.Minute, 20*time.Minute)}
}

// Load reads and decodes the shared input at path.
func (l *InputLoader) Load(path string) (*Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())
	if cached, ok := l.cache.Get(key); ok {
		return cached.(*Input), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	in, err := ParseInput(path, data)
	if err != nil {
		return nil, err
	}
	l.cache.Set(key, in, cache.DefaultExpiration)
	return in, nil
}
