package taxonomy

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// catalogFile is the on-disk shape of a catalog TOML file:
//
//	[[categories]]
//	id = "product_search"
//	label = "Product Search"
//	priority = 1
//	threshold = 0.6
//	capabilities = ["global_search", "price_comparison"]
//	phrases = [
//	  { phrase = "price", weight = 1.0 },
//	  { phrase = "supplier", weight = 0.9 },
//	]
type catalogFile struct {
	Categories []Category `toml:"categories"`
}

// LoadCatalog reads and validates a catalog file. Categories that omit a
// threshold inherit the given default.
func LoadCatalog(path string, defaultThreshold float64) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read catalog: %w", err)
	}

	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("taxonomy: parse catalog: %w", err)
	}

	for i := range f.Categories {
		if f.Categories[i].Threshold == 0 {
			f.Categories[i].Threshold = defaultThreshold
		}
	}

	if err := Validate(f.Categories); err != nil {
		return nil, err
	}
	return f.Categories, nil
}
