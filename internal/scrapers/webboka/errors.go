package webboka

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable matches every AuthError of kind BackendUnavailable.
	ErrBackendUnavailable = errors.New("booking portal unavailable")
	// ErrLoginFailed matches every AuthError of kind LoginFailed.
	ErrLoginFailed = errors.New("login failed")
	// ErrScrape matches every ScrapeError.
	ErrScrape = errors.New("scrape failed")
)

type AuthErrorKind int

const (
	// BackendUnavailable means the portal answered 5xx or could not be reached.
	BackendUnavailable AuthErrorKind = iota + 1
	// LoginFailed means the portal rejected the credentials or did not issue a session cookie.
	LoginFailed
)

func (k AuthErrorKind) String() string {
	switch k {
	case BackendUnavailable:
		return "BackendUnavailable"
	case LoginFailed:
		return "LoginFailed"
	}
	return fmt.Sprintf("AuthErrorKind(%d)", int(k))
}

func (k AuthErrorKind) sentinel() error {
	if k == LoginFailed {
		return ErrLoginFailed
	}
	return ErrBackendUnavailable
}

// AuthError is returned by Client.Login.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.sentinel(), e.Err)
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func backendUnavailable(err error) error {
	return &AuthError{Kind: BackendUnavailable, Err: err}
}

func loginFailed(err error) error {
	return &AuthError{Kind: LoginFailed, Err: err}
}

// ScrapeError is returned by Client.Scrape on transport failures and unexpected markup.
type ScrapeError struct {
	Err error
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrScrape, e.Err)
}

func (e *ScrapeError) Unwrap() []error {
	return []error{ErrScrape, e.Err}
}

func scrapeError(err error) error {
	return &ScrapeError{Err: err}
}

// serverError is a 5xx answer from the portal, it counts as a failure for the circuit breaker.
type serverError struct {
	status string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("portal responded %s", e.status)
}
