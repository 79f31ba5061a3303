package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Def is the static configuration of an agent. Capability sets are fixed
// configuration; only routing weights evolve at runtime.
type Def struct {
	ID           string             `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Capabilities []string           `yaml:"capabilities" json:"capabilities"`
	Weights      map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`
}

type defsFile struct {
	Agents []Def `yaml:"agents"`
}

// LoadDefs reads agent definitions from a YAML file:
//
//	agents:
//	  - id: product_search_agent
//	    name: Product Search Agent
//	    capabilities: [global_search, price_comparison]
func LoadDefs(path string) ([]Def, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent defs: %w", err)
	}

	var f defsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse agent defs: %w", err)
	}

	seen := make(map[string]bool, len(f.Agents))
	for _, d := range f.Agents {
		if d.ID == "" {
			return nil, fmt.Errorf("agent def with empty id")
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate agent def: %s", d.ID)
		}
		seen[d.ID] = true
	}
	return f.Agents, nil
}

// DefaultDefs returns the built-in SEEKER agent fleet, matched to the
// default catalog's capability requirements.
func DefaultDefs() []Def {
	return []Def{
		{
			ID: "product_search_agent", Name: "Product Search Agent",
			Capabilities: []string{"global_search", "price_comparison", "supplier_analysis", "market_research"},
		},
		{
			ID: "price_negotiation_agent", Name: "Price Negotiation Agent",
			Capabilities: []string{"price_optimization", "supplier_negotiation", "demand_forecasting", "competitive_analysis"},
		},
		{
			ID: "verification_agent", Name: "Verification Agent",
			Capabilities: []string{"product_verification", "fraud_detection", "compliance_checking", "quality_assurance"},
		},
		{
			ID: "supply_chain_agent", Name: "Supply Chain Agent",
			Capabilities: []string{"logistics_monitoring", "inventory_tracking", "delivery_optimization", "real_time_insights"},
		},
		{
			ID: "translation_agent", Name: "Translation Agent",
			Capabilities: []string{"multilingual_translation", "voice_processing", "cross_border_communication", "cultural_adaptation"},
		},
		{
			ID: "technical_agent", Name: "Technical Agent",
			Capabilities: []string{"code_analysis", "debugging", "algorithm_optimization"},
		},
		{
			ID: "strategic_agent", Name: "Strategic Agent",
			Capabilities: []string{"business_analysis", "market_research", "strategy_planning"},
		},
		{
			ID: "local_secure_agent", Name: "Local Secure Agent",
			Capabilities: []string{"secure_processing", "privacy_compliance", "local_analysis"},
		},
	}
}
