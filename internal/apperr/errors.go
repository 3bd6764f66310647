package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNoRoadNetwork = &NotFoundError{Resource: "road network", Reason: "no road network in area"}
	ErrNoPath        = &NotFoundError{Resource: "path", Reason: "no path between snapped nodes"}
)

type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func Invalid(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

type NotFoundError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ExternalServiceError wraps a failure of an upstream provider (road data,
// routing, broker).
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func External(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

// ConflictError reports a write that lost against concurrent state, such as a
// ticket that already exists for a pothole.
type ConflictError struct {
	Reason string
	IDs    []string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// ForbiddenError rejects an actor acting on a resource it does not own.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}

func Forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsExternal(err error) bool {
	var ext *ExternalServiceError
	return errors.As(err, &ext)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsForbidden(err error) bool {
	var f *ForbiddenError
	return errors.As(err, &f)
}
