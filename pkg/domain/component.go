package domain

import (
	"strings"
	"time"
	"unicode"

	domerr "github.com/opst/knitfleet/pkg/domain/errors"
)

type Environment struct {
	Id   string
	Name string
}

// Setting is an environment-wide key-value pair.
//
// Settings are injected into every component deployed in the environment.
type Setting struct {
	Id            string
	EnvironmentId string
	Key           string
	Value         string
	Description   string
}

type Application struct {
	Id   string
	Name string
}

// Instance is an application deployed in an environment.
//
// Components of an instance share the image of the instance.
type Instance struct {
	Id            string
	Application   Application
	EnvironmentId string
	Image         string
	Version       string
	Enabled       bool
}

// ImageReference returns "image:version".
func (i Instance) ImageReference() string {
	if i.Version == "" {
		return i.Image
	}
	return i.Image + ":" + i.Version
}

// Namespace where components of the instance are deployed.
func (i Instance) Namespace() string {
	return i.Application.Name
}

type Component struct {
	Id         string
	InstanceId string
	Name       string
	Kind       Kind
	Settings   Settings
	Enabled    bool

	// URL is meaningful only for services. nil if not set.
	URL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateComponentName reports ErrInvalidInput when name is empty or contains whitespace.
func ValidateComponentName(name string) error {
	if strings.TrimSpace(name) == "" {
		return domerr.NewValidation("name", "required")
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return domerr.NewValidation("name", "should not contain whitespace: %q", name)
	}
	return nil
}

// ValidateServiceURL checks the rule between exposure and URL of services:
// URL is required if the exposure is http and visible outside of the cluster,
// otherwise URL is not allowed.
//
// An empty url is treated as unset.
func ValidateServiceURL(exposure Exposure, url *string) error {
	hasURL := url != nil && *url != ""
	if exposure.RequiresURL() {
		if !hasURL {
			return domerr.NewValidation(
				"url",
				"services exposed with http and visibility '%s' must have a URL",
				exposure.Visibility,
			)
		}
		return nil
	}

	if !hasURL {
		return nil
	}
	if exposure.Type != ExposureHTTP {
		return domerr.NewValidation(
			"url",
			"URL is not allowed for services with exposure type '%s'. URL is only allowed for http exposure",
			exposure.Type,
		)
	}
	return domerr.NewValidation(
		"url",
		"URL is not allowed for services with 'cluster' visibility. URL is only allowed for 'public' or 'private' visibility",
	)
}

// Placement records which cluster a component is deployed on.
type Placement struct {
	Id          string
	ComponentId string
	ClusterId   string
	CreatedAt   time.Time
}

// DesiredState is what a component should look like in its cluster.
type DesiredState struct {
	// Component with normalized settings.
	Component Component

	// Environment-wide settings, key to value.
	//
	// They are kept apart from environment variables in the settings of the component.
	Environment map[string]string
}
