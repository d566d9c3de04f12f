package chrono

import (
	"sync"
	"time"
)

// API is the interface that anything depending on the wall clock should use.
type API interface {
	// Now returns the current time in Location().
	Now() time.Time
	Location() *time.Location
}

// StandardImpl reads the system clock.
type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl creates a StandardImpl that reports times in the named IANA zone,
// the booking portal prints local wall clock times so this should be the portal's zone.
func NewStandardImpl(zone string) (StandardImpl, error) {
	location, err := time.LoadLocation(zone)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl is a manually advanced clock for tests.
type FixedImpl struct {
	mutex sync.Mutex
	now   time.Time
}

func NewFixedImpl(now time.Time) *FixedImpl {
	return &FixedImpl{now: now}
}

func (f *FixedImpl) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *FixedImpl) Location() *time.Location {
	return f.Now().Location()
}

// Set moves the clock to t.
func (f *FixedImpl) Set(t time.Time) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *FixedImpl) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
}
