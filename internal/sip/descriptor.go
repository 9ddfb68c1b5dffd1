package sip

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DescriptorKind names the three provisioning payloads.
type DescriptorKind string

const (
	InboundTrunk  DescriptorKind = "inbound-trunk"
	OutboundTrunk DescriptorKind = "outbound-trunk"
	DispatchRule  DescriptorKind = "dispatch-rule"
)

// Descriptor is an opaque provisioning payload. The contents are forwarded
// to the provisioning backend without validation; only existence and basic
// well-formedness of the container format are checked here.
type Descriptor struct {
	Kind DescriptorKind
	Path string
	// JSON holds the payload as JSON. YAML descriptor files are converted
	// once at load; JSON files pass through byte for byte.
	JSON []byte
}

var descriptorExtensions = []string{".json", ".yaml", ".yml"}

// LoadDescriptor finds and loads <dir>/<kind>.{json,yaml,yml}. A missing
// file reports os.ErrNotExist so callers can distinguish "skip" from
// "broken".
func LoadDescriptor(dir string, kind DescriptorKind) (Descriptor, error) {
	for _, ext := range descriptorExtensions {
		path := filepath.Join(dir, string(kind)+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Descriptor{}, fmt.Errorf("read %s: %w", path, err)
		}
		if ext != ".json" {
			data, err = yamlToJSON(data)
			if err != nil {
				return Descriptor{}, fmt.Errorf("convert %s: %w", path, err)
			}
		}
		return Descriptor{Kind: kind, Path: path, JSON: data}, nil
	}
	return Descriptor{}, fmt.Errorf("descriptor %s: %w", kind, os.ErrNotExist)
}

// MaterializeJSON returns a path to a JSON file with the descriptor's
// payload, for backends that take a file argument. JSON source files are
// used in place; converted YAML is staged in a temp file which cleanup
// removes.
func (d Descriptor) MaterializeJSON() (path string, cleanup func(), err error) {
	if strings.HasSuffix(d.Path, ".json") {
		return d.Path, func() {}, nil
	}
	f, err := os.CreateTemp("", string(d.Kind)+"-*.json")
	if err != nil {
		return "", nil, fmt.Errorf("stage descriptor: %w", err)
	}
	if _, err := f.Write(d.JSON); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("stage descriptor: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("stage descriptor: %w", err)
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(doc))
}

// normalizeYAML rewrites map[any]any keys to strings so the document can be
// marshaled as JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeYAML(t[i])
		}
		return t
	default:
		return v
	}
}
