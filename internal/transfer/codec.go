package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Encoding selects the serialization of a document.
type Encoding string

// Supported encodings.
const (
	JSON Encoding = "json"
	YAML Encoding = "yaml"
)

// ParseEncoding maps a name or file extension to an encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown encoding %q", s)
}

// ErrUnsupported is returned for documents of another format or a newer
// version.
var ErrUnsupported = errors.New("unsupported document")

// Marshal serializes doc.
func Marshal(doc *Document, enc Encoding) ([]byte, error) {
	switch enc {
	case YAML:
		return yaml.Marshal(doc)
	case JSON, "":
		return json.MarshalIndent(doc, "", "  ")
	}
	return nil, fmt.Errorf("unknown encoding %q", enc)
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document, enc Encoding) error {
	data, err := Marshal(doc, enc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Unmarshal parses a document. JSON is tried first; input that is not JSON
// is parsed as YAML.
func Unmarshal(data []byte) (*Document, error) {
	var doc Document
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("decode json document: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml document: %w", err)
	}
	if doc.Format != Format {
		return nil, fmt.Errorf("%w: format %q", ErrUnsupported, doc.Format)
	}
	if doc.Version < 1 || doc.Version > Version {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupported, doc.Version)
	}
	return &doc, nil
}

// Decode reads and parses a document from r.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
