package registry

import (
	"errors"
	"fmt"
)

// ErrSealed is returned when registering into a registry that has been sealed.
var ErrSealed = errors.New("registry is sealed")

// DuplicateNameError is returned when a type name is registered twice.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("type %q already registered", e.Name)
}

// UnresolvedReferenceError is returned when a reference names a type that is
// not in the registry.
type UnresolvedReferenceError struct {
	// From is the referencing type, empty for direct Resolve calls.
	From string
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("unresolved reference to %q", e.Name)
	}
	return fmt.Sprintf("type %q references unknown type %q", e.From, e.Name)
}

// ArityError is returned when a reference supplies the wrong number of
// generic arguments.
type ArityError struct {
	From string
	Name string
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("type %q references %q with %d generic argument(s), want %d", e.From, e.Name, e.Got, e.Want)
}

// RetiredReferenceError is returned when a live type references a retired one.
type RetiredReferenceError struct {
	From string
	Name string
}

func (e *RetiredReferenceError) Error() string {
	return fmt.Sprintf("type %q references retired type %q", e.From, e.Name)
}

// IntegrityError aggregates every structural violation found while sealing.
// It unwraps to the individual errors.
type IntegrityError struct {
	Errs []error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("registry integrity: %d error(s)", len(e.Errs))
	for _, err := range e.Errs {
		msg += "\n  - " + err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() []error {
	return e.Errs
}
