package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics.
// Components receive an API instead of logging directly, so tests can assert on what was reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way someone should look at.
	//
	// The `id` names the **component** that broke, not the line that broke. If the login handshake
	// against the booking portal fails while reading the form, the id is `webboka.login`, and the
	// detail goes in the params (usually an error wrapped with fmt.Errorf).
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	//
	// Scope ids with ScopedAPI instead of spelling out the package path.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not necessarily broken but may need a look, like a
	// cached session that the portal no longer accepts.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is dropped unless verbose logging is on.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current value of a counter. Values are samples over time,
	// they should not be summed.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a namespace, like a sub-logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
