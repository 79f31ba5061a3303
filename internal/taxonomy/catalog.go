// Package taxonomy holds the category model: the catalog of request
// categories, each with a phrase weight table, required capability tags and
// a learned confidence threshold. The catalog is read by the classifier and
// router through immutable versioned snapshots and mutated only by the
// adaptive loop, which replaces the whole table on every update.
package taxonomy

import (
	"fmt"
	"sort"

	"github.com/seekerlabs/seekerd/internal/types"
)

// PhraseWeight is one scored phrase in a category's table. Matching is
// substring-based against normalized text, so nested phrases both count.
type PhraseWeight struct {
	Phrase string  `json:"phrase" toml:"phrase"`
	Weight float64 `json:"weight" toml:"weight"`
}

// Category is a single request class.
type Category struct {
	ID           string         `json:"id" toml:"id"`
	Label        string         `json:"label" toml:"label"`
	Phrases      []PhraseWeight `json:"phrases" toml:"phrases"`
	Capabilities []string       `json:"capabilities" toml:"capabilities"`
	// Threshold is the routing confidence threshold for this category.
	// Adjusted by the adaptive loop within configured bounds.
	Threshold float64 `json:"threshold" toml:"threshold"`
	// Priority breaks top-score ties deterministically; lower ranks first.
	Priority int `json:"priority" toml:"priority"`
}

// Clone returns a deep copy so snapshot replacement never aliases slices.
func (c Category) Clone() Category {
	out := c
	out.Phrases = make([]PhraseWeight, len(c.Phrases))
	copy(out.Phrases, c.Phrases)
	out.Capabilities = make([]string, len(c.Capabilities))
	copy(out.Capabilities, c.Capabilities)
	return out
}

// Validate checks a catalog for structural problems before it is installed.
func Validate(cats []Category) error {
	if len(cats) == 0 {
		return fmt.Errorf("taxonomy: empty catalog")
	}
	seen := make(map[string]bool, len(cats))
	for _, c := range cats {
		if c.ID == "" {
			return fmt.Errorf("taxonomy: category with empty id")
		}
		if c.ID == types.CategoryUnclassified {
			return fmt.Errorf("taxonomy: %q is reserved", types.CategoryUnclassified)
		}
		if seen[c.ID] {
			return fmt.Errorf("taxonomy: duplicate category %s", c.ID)
		}
		seen[c.ID] = true
		if len(c.Phrases) == 0 {
			return fmt.Errorf("taxonomy: category %s has no phrases", c.ID)
		}
		for _, p := range c.Phrases {
			if p.Phrase == "" {
				return fmt.Errorf("taxonomy: category %s has an empty phrase", c.ID)
			}
			if p.Weight <= 0 {
				return fmt.Errorf("taxonomy: category %s phrase %q has non-positive weight", c.ID, p.Phrase)
			}
		}
		if c.Threshold < 0 || c.Threshold > 1 {
			return fmt.Errorf("taxonomy: category %s threshold %.3f outside [0,1]", c.ID, c.Threshold)
		}
	}
	return nil
}

// sortCatalog orders categories by priority rank, then ID, so every snapshot
// presents the same deterministic ordering.
func sortCatalog(cats []Category) {
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Priority != cats[j].Priority {
			return cats[i].Priority < cats[j].Priority
		}
		return cats[i].ID < cats[j].ID
	})
}

// DefaultCatalog returns the built-in SEEKER category tables. Used when no
// catalog file is configured; the adaptive loop evolves the weights from here.
func DefaultCatalog() []Category {
	return []Category{
		{
			ID: "product_search", Label: "Product Search", Priority: 1, Threshold: 0.60,
			Capabilities: []string{"global_search", "price_comparison"},
			Phrases: weights(map[string]float64{
				"product": 1.0, "search": 0.9, "find": 0.8, "compare": 0.8,
				"price": 1.0, "cost": 0.8, "buy": 0.9, "purchase": 0.9,
				"supplier": 1.0, "vendor": 0.9, "manufacturer": 0.9,
				"market": 0.7, "inventory": 0.6, "stock": 0.6, "availability": 0.6,
			}),
		},
		{
			ID: "price_negotiation", Label: "Price Negotiation", Priority: 2, Threshold: 0.60,
			Capabilities: []string{"price_optimization", "supplier_negotiation"},
			Phrases: weights(map[string]float64{
				"negotiate": 1.0, "bargain": 0.9, "discount": 0.9, "deal": 0.8,
				"offer": 0.7, "quote": 0.8, "pricing": 0.9, "market price": 1.0,
				"best price": 1.0, "lowest cost": 0.9, "bulk": 0.7,
				"volume discount": 1.0, "contract": 0.7, "agreement": 0.6,
			}),
		},
		{
			ID: "verification", Label: "Verification", Priority: 3, Threshold: 0.60,
			Capabilities: []string{"product_verification", "compliance_checking"},
			Phrases: weights(map[string]float64{
				"verify": 1.0, "authenticate": 1.0, "validate": 0.9, "inspect": 0.8,
				"quality": 0.8, "certification": 0.9, "compliance": 0.9,
				"regulatory": 0.8, "standards": 0.7, "fraud": 1.0,
				"genuine": 0.9, "counterfeit": 1.0, "safety": 0.7, "testing": 0.6,
			}),
		},
		{
			ID: "supply_chain", Label: "Supply Chain", Priority: 4, Threshold: 0.60,
			Capabilities: []string{"logistics_monitoring", "inventory_tracking"},
			Phrases: weights(map[string]float64{
				"supply chain": 1.0, "logistics": 1.0, "shipping": 0.9, "tracking": 0.9,
				"delivery": 0.8, "fulfillment": 0.9, "warehouse": 0.8,
				"distribution": 0.8, "freight": 0.9, "order status": 1.0,
				"lead time": 0.9, "backorder": 0.9,
			}),
		},
		{
			ID: "translation", Label: "Translation", Priority: 5, Threshold: 0.60,
			Capabilities: []string{"multilingual_translation", "cross_border_communication"},
			Phrases: weights(map[string]float64{
				"translate": 1.0, "language": 0.9, "multilingual": 1.0, "foreign": 0.7,
				"international": 0.6, "cross-border": 0.9, "localization": 0.9,
				"interpret": 0.8, "voice": 0.6, "speech": 0.6, "dialect": 0.8,
			}),
		},
		{
			ID: "technical", Label: "Technical", Priority: 6, Threshold: 0.60,
			Capabilities: []string{"code_analysis"},
			Phrases: weights(map[string]float64{
				"code": 1.0, "analyze": 0.9, "calculate": 0.8, "debug": 0.9,
				"technical": 1.0, "programming": 1.0, "software": 0.8,
				"data": 0.7, "algorithm": 0.9,
			}),
		},
		{
			ID: "strategic", Label: "Strategic", Priority: 7, Threshold: 0.60,
			Capabilities: []string{"business_analysis"},
			Phrases: weights(map[string]float64{
				"plan": 0.8, "strategy": 1.0, "business": 0.9, "growth": 0.9,
				"revenue": 0.8, "investment": 0.9, "partnership": 0.8,
				"competitive": 0.7,
			}),
		},
		{
			// Sensitive requests are pinned to agents with secure local
			// processing; priority 0 wins any top-score tie.
			ID: "sensitive", Label: "Sensitive", Priority: 0, Threshold: 0.50,
			Capabilities: []string{"secure_processing"},
			Phrases: weights(map[string]float64{
				"private": 1.0, "personal": 0.9, "confidential": 1.0, "secure": 0.9,
				"password": 1.0, "financial": 0.9, "medical": 1.0, "legal": 0.9,
			}),
		},
	}
}

// weights converts a map to a sorted phrase list so the default catalog is
// reproducible across runs.
func weights(m map[string]float64) []PhraseWeight {
	out := make([]PhraseWeight, 0, len(m))
	for p, w := range m {
		out = append(out, PhraseWeight{Phrase: p, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phrase < out[j].Phrase })
	return out
}
