package subscription

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog holds the product's plan policy: trial length, the past-due
// grace window, and the retention windows derived from each plan tier.
// RetentionDays is the single derivation point for retention policy;
// the Subscription.RetentionDays field is never set independently.
type Catalog struct {
	TrialDays         int           `yaml:"trial_days"`
	GraceWindow       time.Duration `yaml:"grace_window"`
	FreeRetentionDays int           `yaml:"free_retention_days"`
	PaidRetentionDays int           `yaml:"paid_retention_days"`
}

// DefaultCatalog returns the built-in plan policy: 7-day trials, a
// 3-day grace window for failed payments, 30 days of history retention
// on the free tier and 180 days on paid tiers.
func DefaultCatalog() Catalog {
	return Catalog{
		TrialDays:         7,
		GraceWindow:       72 * time.Hour,
		FreeRetentionDays: 30,
		PaidRetentionDays: 180,
	}
}

// RetentionDays returns the history retention window for a plan.
func (c Catalog) RetentionDays(p Plan) int {
	if p.IsPaid() {
		return c.PaidRetentionDays
	}
	return c.FreeRetentionDays
}

// Validate ensures the catalog is internally consistent. Catching
// configuration errors at startup prevents silent retention-policy bugs.
func (c Catalog) Validate() error {
	if c.TrialDays <= 0 {
		return errors.Join(ErrInvalidCatalog, fmt.Errorf("trial_days must be positive, got %d", c.TrialDays))
	}
	if c.GraceWindow < 0 {
		return errors.Join(ErrInvalidCatalog, fmt.Errorf("grace_window must not be negative, got %s", c.GraceWindow))
	}
	if c.FreeRetentionDays <= 0 || c.PaidRetentionDays <= 0 {
		return errors.Join(ErrInvalidCatalog, fmt.Errorf("retention windows must be positive, got free=%d paid=%d",
			c.FreeRetentionDays, c.PaidRetentionDays))
	}
	return nil
}

// UnmarshalYAML decodes the catalog, keeping current values for fields
// omitted in the document. Durations use Go syntax ("72h", "30m").
func (c *Catalog) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TrialDays         *int    `yaml:"trial_days"`
		GraceWindow       *string `yaml:"grace_window"`
		FreeRetentionDays *int    `yaml:"free_retention_days"`
		PaidRetentionDays *int    `yaml:"paid_retention_days"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.TrialDays != nil {
		c.TrialDays = *raw.TrialDays
	}
	if raw.GraceWindow != nil {
		d, err := time.ParseDuration(*raw.GraceWindow)
		if err != nil {
			return fmt.Errorf("invalid grace_window %q: %w", *raw.GraceWindow, err)
		}
		c.GraceWindow = d
	}
	if raw.FreeRetentionDays != nil {
		c.FreeRetentionDays = *raw.FreeRetentionDays
	}
	if raw.PaidRetentionDays != nil {
		c.PaidRetentionDays = *raw.PaidRetentionDays
	}
	return nil
}

// CatalogFromYAML parses a catalog from YAML. Fields omitted in the
// document fall back to the defaults.
func CatalogFromYAML(data []byte) (Catalog, error) {
	c := DefaultCatalog()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, errors.Join(ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// CatalogFromFile loads a catalog from a YAML file on disk.
func CatalogFromFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, errors.Join(ErrInvalidCatalog, err)
	}
	return CatalogFromYAML(data)
}
