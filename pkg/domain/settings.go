package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	xe "github.com/opst/knitfleet/pkg/errors"
)

type ExposureType string

const (
	ExposureHTTP ExposureType = "http"
	ExposureTCP  ExposureType = "tcp"
	ExposureUDP  ExposureType = "udp"
)

type Visibility string

const (
	// reachable from the internet.
	VisibilityPublic Visibility = "public"

	// reachable from the private network through the gateway.
	VisibilityPrivate Visibility = "private"

	// reachable only in the cluster.
	VisibilityCluster Visibility = "cluster"
)

func (v Visibility) IsKnown() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityCluster:
		return true
	default:
		return false
	}
}

// Exposure is how a component is reachable.
type Exposure struct {
	Type       ExposureType `json:"type"`
	Port       int32        `json:"port"`
	Visibility Visibility   `json:"visibility"`
}

// Exposure for services without explicit one.
func DefaultServiceExposure() Exposure {
	return Exposure{Type: ExposureHTTP, Port: 80, Visibility: VisibilityCluster}
}

// Exposure for workers and jobs without explicit one.
func DefaultPrivateExposure() Exposure {
	return Exposure{Type: ExposureHTTP, Port: 80, Visibility: VisibilityPrivate}
}

// RequiresURL reports whether a service with this exposure must have URL.
//
// It is true if and only if the exposure is http and visible outside of the cluster.
func (e Exposure) RequiresURL() bool {
	return e.Type == ExposureHTTP && e.Visibility != VisibilityCluster
}

// Routed reports whether the exposure needs a route on the gateway of the cluster.
func (e Exposure) Routed() bool {
	return e.Visibility != VisibilityCluster
}

func (e Exposure) validate(field string) error {
	if e.Type == "" {
		return domerr.NewValidation(field+".type", "required")
	}
	if e.Port <= 0 || 65535 < e.Port {
		return domerr.NewValidation(field+".port", "out of range: %d", e.Port)
	}
	if !e.Visibility.IsKnown() {
		return domerr.NewValidation(
			field+".visibility", "should be one of public, private or cluster: %q", e.Visibility,
		)
	}
	return nil
}

type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CustomMetrics struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Port    int32  `json:"port"`
}

const DefaultMetricsPath = "/metrics"

type HealthcheckProtocol string

const (
	HealthcheckHTTP HealthcheckProtocol = "http"
	HealthcheckTCP  HealthcheckProtocol = "tcp"
)

type Healthcheck struct {
	Path             string              `json:"path"`
	Protocol         HealthcheckProtocol `json:"protocol"`
	Port             int32               `json:"port"`
	Timeout          int32               `json:"timeout"`
	Interval         int32               `json:"interval"`
	InitialInterval  int32               `json:"initial_interval"`
	FailureThreshold int32               `json:"failure_threshold"`
}

// WithDefaults fills unset fields of healthcheck.
func (h Healthcheck) WithDefaults() Healthcheck {
	if h.Path == "" {
		h.Path = "/healthcheck"
	}
	if h.Protocol == "" {
		h.Protocol = HealthcheckHTTP
	}
	if h.Port == 0 {
		h.Port = 80
	}
	if h.Timeout == 0 {
		h.Timeout = 3
	}
	if h.Interval == 0 {
		h.Interval = 15
	}
	if h.InitialInterval == 0 {
		h.InitialInterval = 15
	}
	if h.FailureThreshold == 0 {
		h.FailureThreshold = 2
	}
	return h
}

type Autoscaling struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

var DefaultAutoscaling = Autoscaling{Min: 2, Max: 10}

const DefaultScalingThreshold int32 = 80

// CommonSettings are settings shared by all kinds of components.
type CommonSettings struct {
	// CPU cores requested.
	CPU float64 `json:"cpu"`

	// Memory requested, in MiB.
	Memory int64 `json:"memory"`

	Autoscaling            Autoscaling    `json:"autoscaling"`
	CPUScalingThreshold    int32          `json:"cpu_scaling_threshold"`
	MemoryScalingThreshold int32          `json:"memory_scaling_threshold"`
	Envs                   []EnvVar       `json:"envs"`
	Command                []string       `json:"command,omitempty"`
	CustomMetrics          *CustomMetrics `json:"custom_metrics,omitempty"`
}

// WithDefaults fills unset fields.
func (c CommonSettings) WithDefaults() CommonSettings {
	if c.Autoscaling == (Autoscaling{}) {
		c.Autoscaling = DefaultAutoscaling
	}
	if c.CPUScalingThreshold == 0 {
		c.CPUScalingThreshold = DefaultScalingThreshold
	}
	if c.MemoryScalingThreshold == 0 {
		c.MemoryScalingThreshold = DefaultScalingThreshold
	}
	if c.Envs == nil {
		c.Envs = []EnvVar{}
	}
	if cm := c.CustomMetrics; cm != nil && cm.Path == "" {
		m := *cm
		m.Path = DefaultMetricsPath
		c.CustomMetrics = &m
	}
	return c
}

func (c CommonSettings) validate() error {
	if c.CPU < 0 {
		return domerr.NewValidation("settings.cpu", "should not be negative: %v", c.CPU)
	}
	if c.Memory < 0 {
		return domerr.NewValidation("settings.memory", "should not be negative: %d", c.Memory)
	}
	if c.Autoscaling.Min < 1 {
		return domerr.NewValidation("settings.autoscaling.min", "should be 1 or more: %d", c.Autoscaling.Min)
	}
	if c.Autoscaling.Max < c.Autoscaling.Min {
		return domerr.NewValidation(
			"settings.autoscaling", "max (%d) should not be less than min (%d)",
			c.Autoscaling.Max, c.Autoscaling.Min,
		)
	}
	for name, th := range map[string]int32{
		"settings.cpu_scaling_threshold":    c.CPUScalingThreshold,
		"settings.memory_scaling_threshold": c.MemoryScalingThreshold,
	} {
		if th < 1 || 100 < th {
			return domerr.NewValidation(name, "should be in 1..100: %d", th)
		}
	}
	for i, e := range c.Envs {
		if strings.TrimSpace(e.Key) == "" {
			return domerr.NewValidation(fmt.Sprintf("settings.envs[%d].key", i), "required")
		}
	}
	if cm := c.CustomMetrics; cm != nil && cm.Enabled {
		if cm.Port <= 0 || 65535 < cm.Port {
			return domerr.NewValidation("settings.custom_metrics.port", "out of range: %d", cm.Port)
		}
	}
	return nil
}

// Settings is the desired configuration of a component.
//
// It is one of *ServiceSettings, *WorkerSettings or *JobSettings.
// Each of them has CommonSettings.
type Settings interface {
	Kind() Kind

	Common() *CommonSettings

	// Exposure of the component. ok is false when it is not set.
	GetExposure() (exposure Exposure, ok bool)

	SetExposure(Exposure)

	// Validate reports ErrInvalidInput-wrapping error when the settings violates rules of the kind.
	Validate() error

	settings()
}

type ServiceSettings struct {
	CommonSettings
	Exposure    Exposure     `json:"exposure"`
	Healthcheck *Healthcheck `json:"healthcheck,omitempty"`
}

var _ Settings = &ServiceSettings{}

func (*ServiceSettings) Kind() Kind {
	return KindService
}

func (s *ServiceSettings) Common() *CommonSettings {
	return &s.CommonSettings
}

func (s *ServiceSettings) GetExposure() (Exposure, bool) {
	return s.Exposure, true
}

func (s *ServiceSettings) SetExposure(e Exposure) {
	s.Exposure = e
}

func (*ServiceSettings) settings() {}

func (s *ServiceSettings) Validate() error {
	if err := s.CommonSettings.validate(); err != nil {
		return err
	}
	if err := s.Exposure.validate("settings.exposure"); err != nil {
		return err
	}
	if hc := s.Healthcheck; hc != nil {
		switch hc.Protocol {
		case HealthcheckHTTP, HealthcheckTCP:
		default:
			return domerr.NewValidation(
				"settings.healthcheck.protocol", "should be http or tcp: %q", hc.Protocol,
			)
		}
	}
	return nil
}

type WorkerSettings struct {
	CommonSettings
	Exposure *Exposure `json:"exposure,omitempty"`
}

var _ Settings = &WorkerSettings{}

func (*WorkerSettings) Kind() Kind {
	return KindWorker
}

func (s *WorkerSettings) Common() *CommonSettings {
	return &s.CommonSettings
}

func (*WorkerSettings) settings() {}

func (s *WorkerSettings) GetExposure() (Exposure, bool) {
	if s.Exposure == nil {
		return Exposure{}, false
	}
	return *s.Exposure, true
}

func (s *WorkerSettings) SetExposure(e Exposure) {
	s.Exposure = &e
}

func (s *WorkerSettings) Validate() error {
	if err := s.CommonSettings.validate(); err != nil {
		return err
	}
	if s.Exposure != nil {
		return s.Exposure.validate("settings.exposure")
	}
	return nil
}

type ConcurrencyPolicy string

const (
	ConcurrencyAllow   ConcurrencyPolicy = "Allow"
	ConcurrencyForbid  ConcurrencyPolicy = "Forbid"
	ConcurrencyReplace ConcurrencyPolicy = "Replace"
)

type JobSettings struct {
	CommonSettings
	Exposure *Exposure `json:"exposure,omitempty"`

	// cron expression, like "*/5 * * * *"
	Schedule          string            `json:"schedule"`
	ConcurrencyPolicy ConcurrencyPolicy `json:"concurrency_policy,omitempty"`
}

var _ Settings = &JobSettings{}

func (*JobSettings) Kind() Kind {
	return KindJob
}

func (s *JobSettings) Common() *CommonSettings {
	return &s.CommonSettings
}

func (*JobSettings) settings() {}

func (s *JobSettings) GetExposure() (Exposure, bool) {
	if s.Exposure == nil {
		return Exposure{}, false
	}
	return *s.Exposure, true
}

func (s *JobSettings) SetExposure(e Exposure) {
	s.Exposure = &e
}

func (s *JobSettings) Validate() error {
	if err := s.CommonSettings.validate(); err != nil {
		return err
	}
	if s.Exposure != nil {
		if err := s.Exposure.validate("settings.exposure"); err != nil {
			return err
		}
	}
	schedule := strings.TrimSpace(s.Schedule)
	if schedule == "" {
		return domerr.NewValidation("settings.schedule", "required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return domerr.NewValidation("settings.schedule", "not a cron expression: %s", err)
	}
	switch s.ConcurrencyPolicy {
	case "", ConcurrencyAllow, ConcurrencyForbid, ConcurrencyReplace:
	default:
		return domerr.NewValidation(
			"settings.concurrency_policy",
			"should be one of Allow, Forbid or Replace: %q", s.ConcurrencyPolicy,
		)
	}
	return nil
}

// NewSettings returns empty settings for the kind.
func NewSettings(kind Kind) (Settings, error) {
	switch kind {
	case KindService:
		return &ServiceSettings{}, nil
	case KindWorker:
		return &WorkerSettings{}, nil
	case KindJob:
		return &JobSettings{}, nil
	default:
		return nil, xe.Wrap(fmt.Errorf(`%w: "%s"`, ErrUnknownKind, kind))
	}
}

// MarshalSettings encodes settings into a JSON document.
func MarshalSettings(s Settings) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return b, nil
}

// UnmarshalSettings decodes a JSON document made by MarshalSettings.
func UnmarshalSettings(kind Kind, b []byte) (Settings, error) {
	s, err := NewSettings(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, xe.Wrap(err)
	}
	return s, nil
}

// CloneSettings makes a deep copy of settings.
func CloneSettings(s Settings) (Settings, error) {
	b, err := MarshalSettings(s)
	if err != nil {
		return nil, err
	}
	return UnmarshalSettings(s.Kind(), b)
}
