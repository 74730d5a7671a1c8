package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fixmux/fixmux/internal/locsvc"
	"github.com/fixmux/fixmux/internal/position"
)

var (
	// errAllSourcesFailed is wrapped when no requested registration succeeded.
	errAllSourcesFailed = errors.New("every source registration failed")
	// errSourcesClosed marks a session that was stored although none of its
	// sources is currently enabled.
	errSourcesClosed = errors.New("no requested source is enabled")
)

// sourceError records a failed registration with one source.
type sourceError struct {
	Kind position.SourceKind
	Err  error
}

func (e *sourceError) Error() string {
	return fmt.Sprintf("register %s: %v", e.Kind, e.Err)
}

func (e *sourceError) Unwrap() error { return e.Err }

// registrationError aggregates the failures of one construction attempt.
type registrationError struct {
	requested int
	failures  []*sourceError
}

func (e *registrationError) add(kind position.SourceKind, err error) {
	e.failures = append(e.failures, &sourceError{Kind: kind, Err: err})
}

// err returns nil while at least one requested registration succeeded.
func (e *registrationError) err() error {
	if len(e.failures) == 0 || len(e.failures) < e.requested {
		return nil
	}
	return e
}

func (e *registrationError) Error() string {
	parts := make([]string, len(e.failures))
	for i, f := range e.failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%v: %s", errAllSourcesFailed, strings.Join(parts, "; "))
}

func (e *registrationError) Unwrap() []error {
	errs := make([]error, 0, len(e.failures)+1)
	errs = append(errs, errAllSourcesFailed)
	for _, f := range e.failures {
		errs = append(errs, f)
	}
	return errs
}

// permissionOnly reports whether every failure was a permission refusal.
func (e *registrationError) permissionOnly() bool {
	if len(e.failures) == 0 {
		return false
	}
	for _, f := range e.failures {
		if !errors.Is(f.Err, locsvc.ErrPermission) {
			return false
		}
	}
	return true
}

// resultFor maps a construction error to the public code of the request
// family. nil maps to success.
func resultFor(err error, satellite bool) position.Result {
	r := position.Result{Satellite: satellite, Code: position.UnknownSourceError}
	if satellite {
		r.Code = position.SatelliteUnknownSourceError
	}

	var regErr *registrationError
	switch {
	case err == nil:
		r.Code = position.NoError
		if satellite {
			r.Code = position.SatelliteNoError
		}
	case errors.As(err, &regErr):
		if regErr.permissionOnly() {
			r.Code = position.AccessError
		}
	case errors.Is(err, locsvc.ErrPermission):
		r.Code = position.AccessError
	case errors.Is(err, errSourcesClosed):
		r.Code = position.ClosedError
	}
	return r
}
