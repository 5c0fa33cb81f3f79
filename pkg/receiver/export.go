package receiver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/vmihailenco/msgpack/v5"
)

// ExportFormat serializes and deserializes an exportSnapshot. This
// module wires exactly the three formats below rather than exposing a
// runtime-registerable FormatRegistry, since nothing in this protocol
// calls for a caller-supplied custom format.
type ExportFormat interface {
	Name() string
	Extension() string
	ContentType() string
	Marshal(snap exportSnapshot) ([]byte, error)
	Unmarshal(data []byte, snap *exportSnapshot) error
}

type jsonFormat struct{}

func (jsonFormat) Name() string        { return "json" }
func (jsonFormat) Extension() string   { return ".json" }
func (jsonFormat) ContentType() string { return "application/json" }
func (jsonFormat) Marshal(snap exportSnapshot) ([]byte, error) {
	return json.Marshal(snap)
}
func (jsonFormat) Unmarshal(data []byte, snap *exportSnapshot) error {
	return json.Unmarshal(data, snap)
}

type yamlFormat struct{}

func (yamlFormat) Name() string        { return "yaml" }
func (yamlFormat) Extension() string   { return ".yaml" }
func (yamlFormat) ContentType() string { return "application/yaml" }
func (yamlFormat) Marshal(snap exportSnapshot) ([]byte, error) {
	return yaml.Marshal(snap)
}
func (yamlFormat) Unmarshal(data []byte, snap *exportSnapshot) error {
	return yaml.Unmarshal(data, snap)
}

type msgpackFormat struct{}

func (msgpackFormat) Name() string        { return "msgpack" }
func (msgpackFormat) Extension() string   { return ".msgpack" }
func (msgpackFormat) ContentType() string { return "application/msgpack" }
func (msgpackFormat) Marshal(snap exportSnapshot) ([]byte, error) {
	return msgpack.Marshal(snap)
}
func (msgpackFormat) Unmarshal(data []byte, snap *exportSnapshot) error {
	return msgpack.Unmarshal(data, snap)
}

var exportFormats = map[string]ExportFormat{
	"json":    jsonFormat{},
	"yaml":    yamlFormat{},
	"msgpack": msgpackFormat{},
}

// LookupFormat returns the wired ExportFormat for name (case-insensitive),
// or an error if name names none of "json", "yaml", "msgpack".
func LookupFormat(name string) (ExportFormat, error) {
	f, ok := exportFormats[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("receiver: unknown export format %q", name)
	}
	return f, nil
}

// Export serializes the current tree plus the live attribution window
// using the named format ("json", "yaml", or "msgpack").
func (r *Receiver) Export(format string) ([]byte, error) {
	f, err := LookupFormat(format)
	if err != nil {
		return nil, err
	}
	return f.Marshal(r.snapshot())
}

// ExportSanitized is Export with every node's props redacted by s
// first, so a Guest-supplied secret sitting in a prop value cannot leak
// through a debug export.
func (r *Receiver) ExportSanitized(format string, s *Sanitizer) ([]byte, error) {
	f, err := LookupFormat(format)
	if err != nil {
		return nil, err
	}
	snap := r.snapshot()
	for i := range snap.Nodes {
		snap.Nodes[i].Props = s.SanitizeProps(snap.Nodes[i].Props)
	}
	return f.Marshal(snap)
}
