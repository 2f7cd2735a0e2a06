package errors

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/knitfleet-api-types/errors"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
)

type ErrorMessageOption func(in *apierr.ErrorMessage) *apierr.ErrorMessage

func WithAdvice(advice string) ErrorMessageOption {
	return func(in *apierr.ErrorMessage) *apierr.ErrorMessage {
		if advice != "" {
			in.Advice = advice
		}
		return in
	}
}

func WithError(err error) ErrorMessageOption {
	return func(in *apierr.ErrorMessage) *apierr.ErrorMessage {
		if err != nil {
			in.Cause = err
		}
		return in
	}
}

func WithCluster(cluster string) ErrorMessageOption {
	return func(in *apierr.ErrorMessage) *apierr.ErrorMessage {
		if cluster != "" {
			in.Cluster = cluster
		}
		return in
	}
}

func NewErrorMessage(code int, reason string, opts ...ErrorMessageOption) *echo.HTTPError {
	msg := apierr.ErrorMessage{Reason: reason}
	for _, opt := range opts {
		msg = *opt(&msg)
	}

	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func NotFound(err error) *echo.HTTPError {
	return NewErrorMessage(http.StatusNotFound, "not found", WithError(err))
}

func BadRequest(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusBadRequest,
		"bad request",
		WithAdvice(advice),
		WithError(err),
	)
}

func Conflict(message string, options ...ErrorMessageOption) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusConflict,
		message,
		options...,
	)
}

func ServiceUnavailable(advice string, err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusServiceUnavailable,
		"service unavailable temporaly",
		WithAdvice(advice),
		WithError(err),
	)
}

func InternalServerError(err error) *echo.HTTPError {
	return NewErrorMessage(
		http.StatusInternalServerError,
		"unexpected error",
		WithError(err),
	)
}

// FromDomainError converts errors from domain services into a HTTP error response.
//
// Errors not known to domain are InternalServerError.
func FromDomainError(err error) *echo.HTTPError {
	if capErr := new(domerr.CapabilityError); errors.As(err, &capErr) {
		return NewErrorMessage(
			http.StatusUnprocessableEntity,
			capErr.Error(),
			WithCluster(capErr.Cluster),
			WithAdvice("choose another exposure, or install the API into the cluster."),
			WithError(err),
		)
	}
	if depErr := new(domerr.DeployError); errors.As(err, &depErr) {
		return NewErrorMessage(
			http.StatusBadGateway,
			depErr.Error(),
			WithCluster(depErr.Cluster),
			WithAdvice("nothing is changed. check the cluster and retry."),
			WithError(err),
		)
	}
	if verr := new(domerr.ValidationError); errors.As(err, &verr) {
		return BadRequest(verr.Error(), err)
	}

	switch {
	case errors.Is(err, domerr.ErrInvalidInput):
		return BadRequest("", err)
	case errors.Is(err, domerr.ErrMissing):
		return NotFound(err)
	case errors.Is(err, domerr.ErrConflict):
		return Conflict("conflict", WithAdvice("names of components should be unique in an instance."), WithError(err))
	case errors.Is(err, domerr.ErrNoEligibleCluster):
		return ServiceUnavailable("no clusters in the environment are reachable. retry later.", err)
	default:
		return InternalServerError(err)
	}
}
