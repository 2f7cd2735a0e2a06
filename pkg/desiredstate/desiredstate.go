// Package desiredstate merges settings of a component and its environment
// into the state to be deployed.
package desiredstate

import (
	"github.com/opst/knitfleet/pkg/domain"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	xe "github.com/opst/knitfleet/pkg/errors"
)

// Build makes the desired state of the component.
//
// The component is not modified; settings in the returned state are a copy with defaults filled.
//
// # Args
//
// - component: component to be deployed.
//
// - settings: environment-wide settings of the environment where the component is deployed.
//
// # Returns
//
// - domain.DesiredState
//
// - error: ErrInvalidInput when the component has no settings.
func Build(component domain.Component, settings []domain.Setting) (domain.DesiredState, error) {
	if component.Settings == nil {
		return domain.DesiredState{}, domerr.NewValidation("settings", "required")
	}

	s, err := domain.CloneSettings(component.Settings)
	if err != nil {
		return domain.DesiredState{}, xe.Wrap(err)
	}
	*s.Common() = s.Common().WithDefaults()

	switch ss := s.(type) {
	case *domain.ServiceSettings:
		if ss.Exposure == (domain.Exposure{}) {
			ss.Exposure = domain.DefaultServiceExposure()
		}
		if ss.Healthcheck != nil {
			hc := ss.Healthcheck.WithDefaults()
			ss.Healthcheck = &hc
		}
	default:
		NormalizeExposure(s)
	}

	env := make(map[string]string, len(settings))
	for _, st := range settings {
		env[st.Key] = st.Value
	}

	component.Settings = s
	return domain.DesiredState{Component: component, Environment: env}, nil
}

// NormalizeExposure makes exposure of workers and jobs private.
//
// Missing exposure is set to http, port 80, private. Settings of services are left as is.
func NormalizeExposure(s domain.Settings) {
	if s == nil || s.Kind() == domain.KindService {
		return
	}
	e, ok := s.GetExposure()
	if !ok {
		s.SetExposure(domain.DefaultPrivateExposure())
		return
	}
	e.Visibility = domain.VisibilityPrivate
	s.SetExposure(e)
}
