package domain

import (
	"errors"
	"fmt"
)

// Kind of components.
type Kind string

const (
	// long-running process exposed through network.
	KindService Kind = "service"

	// long-running process without public entrypoint.
	KindWorker Kind = "worker"

	// process run on schedule.
	KindJob Kind = "job"
)

var ErrUnknownKind = errors.New("unknown kind of component")

func (k Kind) String() string {
	return string(k)
}

func (k Kind) IsKnown() bool {
	switch k {
	case KindService, KindWorker, KindJob:
		return true
	default:
		return false
	}
}

func AsKind(s string) (Kind, error) {
	k := Kind(s)
	if k.IsKnown() {
		return k, nil
	}
	return k, fmt.Errorf(`%w: "%s"`, ErrUnknownKind, s)
}

// Kinds returns all known kinds.
func Kinds() []Kind {
	return []Kind{KindService, KindWorker, KindJob}
}
