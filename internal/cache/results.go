package cache

import (
	"tvatt-backend/internal/components/telemetry"
	"tvatt-backend/internal/laundry"
)

const (
	report_results_expired = "results.expired"
	report_results_size    = "results.size"
)

// ResultCache holds the latest scraped dataset per username for a short time.
type ResultCache struct {
	store *ttlStore[laundry.ScrapeResult]
	tel   telemetry.API
}

func NewResultCache(opts Options) (*ResultCache, error) {
	opts = opts.withDefaults(DefaultResultTTL)
	store, err := newTTLStore[laundry.ScrapeResult]("result", opts.Capacity, opts.TTL, opts.Clock)
	if err != nil {
		return nil, err
	}
	return &ResultCache{
		store: store,
		tel:   telemetry.NewScopedAPI("cache", opts.Tel),
	}, nil
}

// Get returns the cached dataset for username. An entry past its TTL is deleted and reported
// absent, an entry stored under another credential fingerprint is reported absent.
func (c *ResultCache) Get(username, fingerprint string) (laundry.ScrapeResult, bool) {
	data, result := c.store.get(username, fingerprint)
	if result == lookupExpired {
		c.tel.ReportDebug(report_results_expired, username)
	}
	return data, result == lookupHit
}

func (c *ResultCache) Put(username, fingerprint string, data laundry.ScrapeResult) {
	c.store.put(username, fingerprint, data)
	c.tel.ReportCount(report_results_size, int64(c.store.len()))
}

// Len returns the number of stored datasets, expired ones included until they are read.
func (c *ResultCache) Len() int {
	return c.store.len()
}
