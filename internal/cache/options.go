package cache

import (
	"time"
	"tvatt-backend/internal/components/chrono"
	"tvatt-backend/internal/components/telemetry"
)

const (
	DefaultSessionTTL = 10 * time.Minute
	DefaultResultTTL  = 10 * time.Second
	DefaultCapacity   = 2048
)

// Options configure a SessionStore or ResultCache, zero values take the defaults.
type Options struct {
	TTL      time.Duration
	Capacity int
	Clock    chrono.API
	Tel      telemetry.API
}

func (o Options) withDefaults(ttl time.Duration) Options {
	if o.TTL <= 0 {
		o.TTL = ttl
	}
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Tel == nil {
		o.Tel = telemetry.SlogAPI{}
	}
	return o
}

type systemClock struct{}

func (systemClock) Now() time.Time           { return time.Now() }
func (systemClock) Location() *time.Location { return time.Local }
