// Package app carries the shared error taxonomy and logger construction
// used by every layer of the process.
package app

import (
	"errors"
	"fmt"
)

// NotFoundError indicates that a required entity is absent or soft-deleted.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// IntegrityError indicates a violated business or schema invariant, such as
// a duplicate name, schema-invalid values or a downgrade attempt.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return e.Reason
}

// InProgressError indicates that an open reconcile job already exists for
// the deployment, so no further desired-state change can be accepted yet.
type InProgressError struct {
	DeploymentID int64
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("a reconcile job is already queued or running for deployment %d", e.DeploymentID)
}

func NewNotFound(entity string) error {
	return &NotFoundError{Entity: entity}
}

func NewIntegrity(format string, args ...interface{}) error {
	return &IntegrityError{Reason: fmt.Sprintf(format, args...)}
}

func NewInProgress(deploymentID int64) error {
	return &InProgressError{DeploymentID: deploymentID}
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsIntegrity(err error) bool {
	var e *IntegrityError
	return errors.As(err, &e)
}

func IsInProgress(err error) bool {
	var e *InProgressError
	return errors.As(err, &e)
}
