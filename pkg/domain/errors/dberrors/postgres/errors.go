package postgres

import (
	"fmt"

	domerr "github.com/opst/knitfleet/pkg/domain/errors"
)

// requested row is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return domerr.ErrMissing
}

// a row violates unique constraint.
type Conflict struct {
	Table      string
	Constraint string
}

var _ error = Conflict{}

func (c Conflict) Error() string {
	return fmt.Sprintf("conflicting with existing row in %s (%s)", c.Table, c.Constraint)
}

func (c Conflict) Unwrap() error {
	return domerr.ErrConflict
}
