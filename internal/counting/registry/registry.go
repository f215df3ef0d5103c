// Package registry looks up product data for a barcode in external
// product registries. Providers are queried in a fixed priority order;
// a miss in one falls through to the next.
package registry

import (
	"context"

	"github.com/tapline/tapline-backend/pkg/logger"
)

// ProductRecord is the normalized product data a provider returns
type ProductRecord struct {
	Barcode  string `json:"barcode"`
	Name     string `json:"name"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
	UnitSize string `json:"unit_size,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	// Source names the registry that produced this record
	Source string `json:"source"`
}

// Provider is a single external product registry.
// LookupByCode returns (nil, nil) when the registry has no record for
// the code; errors are reserved for transport and decode failures.
type Provider interface {
	Name() string
	LookupByCode(ctx context.Context, code string) (*ProductRecord, error)
}

// Chain queries providers in order until one returns a record.
// A provider error is logged and the chain falls through to the next
// provider, so one flaky registry never blocks a lookup.
type Chain struct {
	providers []Provider
	logger    *logger.Logger
}

// NewChain creates a provider chain with the given priority order
func NewChain(log *logger.Logger, providers ...Provider) *Chain {
	return &Chain{
		providers: providers,
		logger:    log,
	}
}

// Lookup queries each provider in order. Returns (nil, nil) when every
// provider misses.
func (c *Chain) Lookup(ctx context.Context, code string) (*ProductRecord, error) {
	for _, p := range c.providers {
		record, err := p.LookupByCode(ctx, code)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("provider", p.Name()).
				Str("barcode", code).
				Msg("registry lookup failed, trying next provider")
			continue
		}
		if record != nil {
			return record, nil
		}
	}
	return nil, nil
}

// Providers returns the configured providers in priority order
func (c *Chain) Providers() []Provider {
	return c.providers
}
