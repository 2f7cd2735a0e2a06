package errors

import (
	"errors"
	"fmt"

	xe "github.com/opst/knitfleet/pkg/errors"
)

var (
	// Requested entity is not found.
	ErrMissing = errors.New("missing")

	// Request does not satisfy the rules of components.
	ErrInvalidInput = errors.New("invalid input")

	// Entity conflicts with another one (e.g. duplicated name).
	ErrConflict = errors.New("conflict")

	// Cluster lacks a feature required by the component.
	ErrCapabilityMismatch = errors.New("capability mismatch")

	// No cluster in the environment can accept new components.
	ErrNoEligibleCluster = errors.New("no eligible cluster")

	// Remote apply of manifests failed.
	ErrDeployFailed = errors.New("deploy failed")
)

// ValidationError tells which field of a request is wrong.
type ValidationError struct {
	Field   string
	Message string
}

func (v *ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

func (v *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidation returns a ValidationError wrapped with the location of the caller.
func NewValidation(field string, format string, args ...any) error {
	return xe.WrapAsOuter(
		&ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}, 1,
	)
}

// CapabilityError is raised when a cluster does not serve an API required by a component.
type CapabilityError struct {
	Cluster    string
	Capability string
	Reason     string
}

func (c *CapabilityError) Error() string {
	return fmt.Sprintf(
		"cluster '%s' does not support %s: %s", c.Cluster, c.Capability, c.Reason,
	)
}

func (c *CapabilityError) Unwrap() error {
	return ErrCapabilityMismatch
}

// DeployError is raised when manifests of a component could not be applied to a cluster.
//
// errors.Is reports true for both of ErrDeployFailed and the cause.
type DeployError struct {
	Kind      string
	Component string
	Cluster   string
	Err       error
}

func (d *DeployError) Error() string {
	return fmt.Sprintf(
		"failed to deploy %s '%s' to Kubernetes cluster '%s': %v",
		d.Kind, d.Component, d.Cluster, d.Err,
	)
}

func (d *DeployError) Unwrap() []error {
	return []error{ErrDeployFailed, d.Err}
}
