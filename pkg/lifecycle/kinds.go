package lifecycle

import (
	"github.com/opst/knitfleet/pkg/desiredstate"
	"github.com/opst/knitfleet/pkg/domain"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
)

// KindRules are what differ between kinds of components.
type KindRules struct {
	// Normalize fills defaults of settings to be stored.
	Normalize func(domain.Settings)

	// Validate checks the component with normalized settings.
	Validate func(domain.Component) error

	// Capabilities which the cluster should serve to host the component.
	Capabilities func(domain.Settings) []domain.Capability
}

// Kinds maps each kind of components to its rules.
var Kinds = map[domain.Kind]KindRules{
	domain.KindService: {
		Normalize: func(s domain.Settings) {
			*s.Common() = s.Common().WithDefaults()
			if ss, ok := s.(*domain.ServiceSettings); ok && ss.Exposure == (domain.Exposure{}) {
				ss.Exposure = domain.DefaultServiceExposure()
			}
		},
		Validate: func(c domain.Component) error {
			if err := c.Settings.Validate(); err != nil {
				return err
			}
			exposure, _ := c.Settings.GetExposure()
			return domain.ValidateServiceURL(exposure, c.URL)
		},
		Capabilities: func(s domain.Settings) []domain.Capability {
			exposure, _ := s.GetExposure()
			return domain.RequiredCapabilities(exposure)
		},
	},
	domain.KindWorker: {
		Normalize: normalizePrivate,
		Validate:  validateWithoutURL,
		Capabilities: func(domain.Settings) []domain.Capability {
			return nil
		},
	},
	domain.KindJob: {
		Normalize: normalizePrivate,
		Validate:  validateWithoutURL,
		Capabilities: func(domain.Settings) []domain.Capability {
			return nil
		},
	},
}

func normalizePrivate(s domain.Settings) {
	*s.Common() = s.Common().WithDefaults()
	desiredstate.NormalizeExposure(s)
}

func validateWithoutURL(c domain.Component) error {
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if c.URL != nil && *c.URL != "" {
		return domerr.NewValidation("url", "URL is only allowed for services, not for %s", c.Kind)
	}
	return nil
}
