package components

import (
	"strings"

	"github.com/google/shlex"
	"github.com/opst/knitfleet-api-types/components"
	"github.com/opst/knitfleet-api-types/misc/rfctime"
	"github.com/opst/knitfleet/pkg/deployer"
	"github.com/opst/knitfleet/pkg/domain"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	"github.com/opst/knitfleet/pkg/lifecycle"
	"github.com/opst/knitfleet/pkg/utils"
)

// migrateEndpoints converts the first of legacy endpoints into exposure.
func migrateEndpoints(ep components.Endpoint) domain.Exposure {
	e := domain.Exposure{
		Type:       domain.ExposureType(strings.ToLower(ep.SourceProtocol)),
		Port:       ep.SourcePort,
		Visibility: domain.Visibility(strings.ToLower(ep.Visibility)),
	}
	if e.Type == "" {
		e.Type = domain.ExposureHTTP
	}
	if e.Port == 0 {
		e.Port = 80
	}
	if e.Visibility == "" {
		e.Visibility = domain.VisibilityCluster
	}
	return e
}

func parseExposure(s *components.Settings) (domain.Exposure, bool) {
	if e := s.Exposure; e != nil {
		return domain.Exposure{
			Type:       domain.ExposureType(strings.ToLower(e.Type)),
			Port:       e.Port,
			Visibility: domain.Visibility(strings.ToLower(e.Visibility)),
		}, true
	}
	if len(s.Endpoints) != 0 {
		return migrateEndpoints(s.Endpoints[0]), true
	}
	return domain.Exposure{}, false
}

func parseCommand(c *components.Command) ([]string, error) {
	if c == nil {
		return nil, nil
	}
	if c.Line == nil {
		return c.Argv, nil
	}
	argv, err := shlex.Split(*c.Line)
	if err != nil {
		return nil, domerr.NewValidation("settings.command", "cannot be split: %s", err)
	}
	return argv, nil
}

// ParseSettings converts settings in a request into settings of the kind.
//
// Legacy "endpoints" are migrated into exposure, a command line is split into argv,
// and missing fields are filled with defaults.
//
// # Returns
//
// - domain.Settings
//
// - error: ErrInvalidInput when settings are missing or broken.
func ParseSettings(kind domain.Kind, s *components.Settings) (domain.Settings, error) {
	if s == nil {
		return nil, domerr.NewValidation("settings", "required")
	}

	command, err := parseCommand(s.Command)
	if err != nil {
		return nil, err
	}

	common := domain.CommonSettings{
		CPU:    s.CPU,
		Memory: s.Memory,
		Envs: utils.Map(s.Envs, func(e components.Env) domain.EnvVar {
			return domain.EnvVar{Key: e.Key, Value: e.Value}
		}),
		Command:                command,
		CPUScalingThreshold:    utils.Default(s.CPUScalingThreshold, 0),
		MemoryScalingThreshold: utils.Default(s.MemoryScalingThreshold, 0),
	}
	if a := s.Autoscaling; a != nil {
		common.Autoscaling = domain.Autoscaling{Min: a.Min, Max: a.Max}
	}
	if cm := s.CustomMetrics; cm != nil {
		common.CustomMetrics = &domain.CustomMetrics{Enabled: cm.Enabled, Path: cm.Path, Port: cm.Port}
	}
	common = common.WithDefaults()

	exposure, hasExposure := parseExposure(s)

	switch kind {
	case domain.KindService:
		if !hasExposure {
			exposure = domain.DefaultServiceExposure()
		}
		ss := &domain.ServiceSettings{CommonSettings: common, Exposure: exposure}
		if hc := s.Healthcheck; hc != nil {
			h := domain.Healthcheck{
				Path:             hc.Path,
				Protocol:         domain.HealthcheckProtocol(strings.ToLower(hc.Protocol)),
				Port:             hc.Port,
				Timeout:          hc.Timeout,
				Interval:         hc.Interval,
				InitialInterval:  hc.InitialInterval,
				FailureThreshold: hc.FailureThreshold,
			}.WithDefaults()
			ss.Healthcheck = &h
		}
		return ss, nil
	case domain.KindWorker:
		ws := &domain.WorkerSettings{CommonSettings: common}
		if hasExposure {
			ws.Exposure = &exposure
		}
		return ws, nil
	case domain.KindJob:
		js := &domain.JobSettings{
			CommonSettings:    common,
			Schedule:          strings.TrimSpace(s.Schedule),
			ConcurrencyPolicy: domain.ConcurrencyPolicy(s.ConcurrencyPolicy),
		}
		if hasExposure {
			js.Exposure = &exposure
		}
		return js, nil
	default:
		return nil, domerr.NewValidation("kind", "unknown: %q", kind)
	}
}

func ParseCreateRequest(kind domain.Kind, req components.CreateRequest) (lifecycle.CreateRequest, error) {
	s, err := ParseSettings(kind, req.Settings)
	if err != nil {
		return lifecycle.CreateRequest{}, err
	}
	return lifecycle.CreateRequest{
		InstanceId: req.InstanceId,
		Name:       req.Name,
		Settings:   s,
		Enabled:    req.Enabled,
		URL:        req.URL,
	}, nil
}

func ParseUpdateRequest(kind domain.Kind, req components.UpdateRequest) (lifecycle.UpdateRequest, error) {
	u := lifecycle.UpdateRequest{Name: req.Name, Enabled: req.Enabled, URL: req.URL}
	if req.Settings != nil {
		s, err := ParseSettings(kind, req.Settings)
		if err != nil {
			return lifecycle.UpdateRequest{}, err
		}
		u.Settings = s
	}
	return u, nil
}

func composeExposure(e domain.Exposure) *components.Exposure {
	return &components.Exposure{Type: string(e.Type), Port: e.Port, Visibility: string(e.Visibility)}
}

func ComposeSettings(s domain.Settings) components.Settings {
	if s == nil {
		return components.Settings{}
	}
	c := s.Common()
	out := components.Settings{
		CPU:    c.CPU,
		Memory: c.Memory,
		Autoscaling: &components.Autoscaling{
			Min: c.Autoscaling.Min, Max: c.Autoscaling.Max,
		},
		CPUScalingThreshold:    &c.CPUScalingThreshold,
		MemoryScalingThreshold: &c.MemoryScalingThreshold,
		Envs: utils.Map(c.Envs, func(e domain.EnvVar) components.Env {
			return components.Env{Key: e.Key, Value: e.Value}
		}),
	}
	if c.Command != nil {
		out.Command = &components.Command{Argv: c.Command}
	}
	if cm := c.CustomMetrics; cm != nil {
		out.CustomMetrics = &components.CustomMetrics{Enabled: cm.Enabled, Path: cm.Path, Port: cm.Port}
	}
	if e, ok := s.GetExposure(); ok {
		out.Exposure = composeExposure(e)
	}

	switch ss := s.(type) {
	case *domain.ServiceSettings:
		if hc := ss.Healthcheck; hc != nil {
			out.Healthcheck = &components.Healthcheck{
				Path:             hc.Path,
				Protocol:         string(hc.Protocol),
				Port:             hc.Port,
				Timeout:          hc.Timeout,
				Interval:         hc.Interval,
				InitialInterval:  hc.InitialInterval,
				FailureThreshold: hc.FailureThreshold,
			}
		}
	case *domain.JobSettings:
		out.Schedule = ss.Schedule
		out.ConcurrencyPolicy = string(ss.ConcurrencyPolicy)
	}
	return out
}

func ComposeDetail(c domain.Component) components.Detail {
	return components.Detail{
		Id:         c.Id,
		InstanceId: c.InstanceId,
		Name:       c.Name,
		Kind:       string(c.Kind),
		URL:        c.URL,
		Enabled:    c.Enabled,
		Settings:   ComposeSettings(c.Settings),
		CreatedAt:  rfctime.RFC3339(c.CreatedAt),
		UpdatedAt:  rfctime.RFC3339(c.UpdatedAt),
	}
}

func ComposeDeleteResult(r lifecycle.DeleteResult) components.DeleteResult {
	out := components.DeleteResult{Id: r.Id, Cleanup: string(r.Cleanup)}
	if r.Cleanup == deployer.CleanupFailed && r.Err != nil {
		out.Message = r.Err.Error()
	}
	return out
}
