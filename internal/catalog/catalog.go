package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Product is one catalog entry used to decorate report and export rows.
// The engine itself only ever sees the opaque product ID.
type Product struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type catalogFile struct {
	Products []Product `yaml:"products"`
}

// FileSystemCatalog loads product metadata from *.yaml files in a directory.
// Each file holds a top-level products list. Loaded once at startup and cached
// in memory — no hot reload.
type FileSystemCatalog struct {
	dir      string
	products map[string]Product // keyed by ID
}

// NewFileSystemCatalog creates a catalog and eagerly loads all product files
// from dir. A missing directory is valid (empty catalog); malformed files and
// duplicate product IDs are errors.
func NewFileSystemCatalog(dir string) (*FileSystemCatalog, error) {
	c := &FileSystemCatalog{
		dir:      dir,
		products: make(map[string]Product),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FileSystemCatalog) load() error {
	if c.dir == "" {
		return nil
	}

	info, err := os.Stat(c.dir)
	if os.IsNotExist(err) {
		return nil // no catalog directory — valid (zero products configured)
	}
	if err != nil {
		return fmt.Errorf("catalog dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("catalog path %q is not a directory", c.dir)
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading catalog dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(c.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading catalog file %s: %w", path, err)
		}

		var raw catalogFile
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing catalog file %s: %w", path, err)
		}

		for _, p := range raw.Products {
			if strings.TrimSpace(p.ID) == "" {
				return fmt.Errorf("catalog file %s: product with empty id", path)
			}
			if _, exists := c.products[p.ID]; exists {
				return fmt.Errorf("catalog: duplicate product id %q (check multiple YAML files)", p.ID)
			}
			c.products[p.ID] = p
		}
	}
	return nil
}

// Get returns the catalog entry for a product ID.
func (c *FileSystemCatalog) Get(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// DisplayName returns the product's catalog name, falling back to the raw ID
// for uncataloged products.
func (c *FileSystemCatalog) DisplayName(id string) string {
	if p, ok := c.products[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}

// Len returns the number of loaded products.
func (c *FileSystemCatalog) Len() int {
	return len(c.products)
}
