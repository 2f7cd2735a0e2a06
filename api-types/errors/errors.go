package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Body of error responses from knitfleet.
type ErrorResponse struct {
	Message ErrorMessage `json:"message"`
}

type ErrorMessage struct {
	// Reason is a short, human readable summary of the failure.
	Reason string `json:"reason"`

	// Advice tells clients what they can do about it.
	Advice string `json:"advice,omitempty"`

	// Cluster names the remote cluster involved in the failure, if any.
	Cluster string `json:"cluster,omitempty"`

	Cause error `json:"-"`
}

func (em *ErrorMessage) UnmarshalJSON(bytes []byte) error {
	f := new(struct {
		Reason  *string `json:"reason"`
		Advice  *string `json:"advice,omitempty"`
		Cluster *string `json:"cluster,omitempty"`
	})
	if err := json.Unmarshal(bytes, f); err != nil {
		return err
	}

	if f.Reason == nil {
		return fmt.Errorf(`required field missing: "reason"`)
	}
	em.Reason = *f.Reason

	if f.Advice != nil {
		em.Advice = *f.Advice
	}
	if f.Cluster != nil {
		em.Cluster = *f.Cluster
	}
	return nil
}

func (e ErrorMessage) String() string {
	lines := []string{e.Reason}
	if e.Cluster != "" {
		lines = append(lines, "cluster: "+e.Cluster)
	}
	if e.Advice != "" {
		lines = append(lines, e.Advice)
	}
	if e.Cause != nil {
		lines = append(lines, fmt.Sprint(" caused by:", e.Cause.Error()))
	}
	return strings.Join(lines, "\n")
}

func (e ErrorMessage) Error() string {
	return e.String()
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}
