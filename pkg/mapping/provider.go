package mapping

import (
	_ "embed"
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Provider yields the index mapping attached at index-creation time. The
// control plane treats the mapping as opaque.
type Provider interface {
	Mapping() (json.RawMessage, error)
}

//go:embed product.yaml
var productMappingYAML []byte

type productProvider struct{}

// NewProductProvider returns the provider for the embedded product schema.
func NewProductProvider() Provider {
	return &productProvider{}
}

func (p *productProvider) Mapping() (json.RawMessage, error) {
	return FromYAML(productMappingYAML)
}

// FromYAML converts a YAML mapping document to the JSON form the cluster
// expects.
func FromYAML(data []byte) (json.RawMessage, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse mapping YAML")
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode mapping as JSON")
	}
	return jsonBytes, nil
}

// Static wraps an already-encoded mapping document.
type Static json.RawMessage

func (s Static) Mapping() (json.RawMessage, error) {
	return json.RawMessage(s), nil
}
