package config

import (
	"fmt"

	"github.com/timmy/cloudnet/internal/domain"
)

// Validate checks the settings every command depends on.
// Returns an error describing the first validation failure, or nil if valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Storage.RawBucket == "" || c.Storage.ProductBucket == "" || c.Storage.VolatileBucket == "" {
		return fmt.Errorf("storage: raw, product and volatile buckets are required")
	}
	if c.Storage.ProductBucket == c.Storage.VolatileBucket {
		return fmt.Errorf("storage: product and volatile buckets must differ")
	}
	if c.Converter.BaseURL == "" {
		return fmt.Errorf("converter: base_url is required")
	}
	if c.Processing.SiteWorkers < 1 {
		return fmt.Errorf("processing: site_workers must be positive")
	}

	seen := make(map[string]bool)
	for _, s := range c.Sites {
		if s.ID == "" {
			return fmt.Errorf("sites: id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("sites: duplicate site %q", s.ID)
		}
		seen[s.ID] = true
	}

	seen = make(map[string]bool)
	for _, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("models: id is required")
		}
		if seen[m.ID] {
			return fmt.Errorf("models: duplicate model %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// Site returns the configured site with the given id.
func (c *Config) Site(id string) (domain.Site, error) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Site{}, domain.ErrConfig.New("unknown site %q", id)
}
