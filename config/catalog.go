package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/warp/barstock/inventory"
)

//go:embed catalog.json
var defaultCatalog []byte

// LoadCatalog reads the catalog from path, or the embedded bottle list
// when path is empty.
func LoadCatalog(path string) (*inventory.StaticCatalog, error) {
	if path == "" {
		return inventory.ReadCatalog(bytes.NewReader(defaultCatalog))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	cat, err := inventory.ReadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Restaurant is a location the bar staff can sign in to.
type Restaurant struct {
	ID   inventory.LocationID `json:"id"`
	Name string               `json:"name"`
}

var restaurantNames = []string{
	"Negro Amaro", "Club Social", "Boston", "Mandarinas Café", "Mandarino Beach",
}

// Restaurants lists the known locations with their URL-safe ids.
func Restaurants() []Restaurant {
	out := make([]Restaurant, len(restaurantNames))
	for i, name := range restaurantNames {
		out[i] = Restaurant{ID: LocationSlug(name), Name: name}
	}
	return out
}

// LocationSlug lower-cases name, strips accents and joins words with "-".
func LocationSlug(name string) inventory.LocationID {
	r := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n")
	words := strings.Fields(r.Replace(strings.ToLower(name)))
	return inventory.LocationID(strings.Join(words, "-"))
}
