package metrics

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var defaultPricingYAML []byte

// Rate is the price in USD per one million tokens.
type Rate struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Pricing maps model names to token rates.
type Pricing struct {
	Default Rate            `yaml:"default" json:"default"`
	Models  map[string]Rate `yaml:"models" json:"models"`
}

// DefaultPricing returns the built-in pricing table.
func DefaultPricing() Pricing {
	p, err := parsePricing(defaultPricingYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded pricing table: %v", err))
	}
	return p
}

// LoadPricing reads a pricing file and merges it over the built-in table.
// An empty path returns the built-in table.
func LoadPricing(path string) (Pricing, error) {
	base := DefaultPricing()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read pricing file: %w", err)
	}
	override, err := parsePricing(data)
	if err != nil {
		return base, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	if override.Default != (Rate{}) {
		base.Default = override.Default
	}
	for name, r := range override.Models {
		base.Models[name] = r
	}
	return base, nil
}

func parsePricing(data []byte) (Pricing, error) {
	var p Pricing
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pricing{}, err
	}
	if p.Models == nil {
		p.Models = make(map[string]Rate)
	}
	for name, r := range p.Models {
		if r.Input < 0 || r.Output < 0 {
			return Pricing{}, fmt.Errorf("negative rate for model %q", name)
		}
	}
	if p.Default.Input < 0 || p.Default.Output < 0 {
		return Pricing{}, fmt.Errorf("negative default rate")
	}
	return p, nil
}

// RateFor returns the rate for a model, falling back to the default rate.
func (p Pricing) RateFor(modelName string) Rate {
	if r, ok := p.Models[modelName]; ok {
		return r
	}
	return p.Default
}
