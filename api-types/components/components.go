package components

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/opst/knitfleet-api-types/misc/rfctime"
)

// How the component is reachable.
type Exposure struct {
	// "http", "tcp" or "udp"
	Type string `json:"type"`
	Port int32  `json:"port"`

	// "public", "private" or "cluster"
	Visibility string `json:"visibility"`
}

func (e Exposure) Equal(o Exposure) bool {
	return e.Type == o.Type && e.Port == o.Port && e.Visibility == o.Visibility
}

// Endpoint is the legacy form of Exposure.
//
// Requests carrying "endpoints" instead of "exposure" are accepted,
// and the first endpoint is used as exposure.
type Endpoint struct {
	SourceProtocol string `json:"source_protocol,omitempty"`
	SourcePort     int32  `json:"source_port,omitempty"`
	Visibility     string `json:"visibility,omitempty"`
}

type Env struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CustomMetrics struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
	Port    int32  `json:"port"`
}

type Healthcheck struct {
	Path             string `json:"path,omitempty"`
	Protocol         string `json:"protocol"`
	Port             int32  `json:"port,omitempty"`
	Timeout          int32  `json:"timeout,omitempty"`
	Interval         int32  `json:"interval,omitempty"`
	InitialInterval  int32  `json:"initial_interval,omitempty"`
	FailureThreshold int32  `json:"failure_threshold,omitempty"`
}

type Autoscaling struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

// Command is either a shell-like command line or an argv list.
type Command struct {
	Line *string
	Argv []string
}

func (c Command) MarshalJSON() ([]byte, error) {
	if c.Line != nil {
		return json.Marshal(*c.Line)
	}
	return json.Marshal(c.Argv)
}

func (c *Command) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		line := ""
		if err := json.Unmarshal(b, &line); err != nil {
			return err
		}
		c.Line = &line
		return nil
	case '[':
		return json.Unmarshal(b, &c.Argv)
	default:
		return fmt.Errorf("command should be a string or a list of strings: %s", b)
	}
}

// Settings of a component.
//
// Fields not meaningful for the kind of component are ignored.
type Settings struct {
	CPU                    float64        `json:"cpu"`
	Memory                 int64          `json:"memory"`
	Autoscaling            *Autoscaling   `json:"autoscaling,omitempty"`
	CPUScalingThreshold    *int32         `json:"cpu_scaling_threshold,omitempty"`
	MemoryScalingThreshold *int32         `json:"memory_scaling_threshold,omitempty"`
	Envs                   []Env          `json:"envs,omitempty"`
	Command                *Command       `json:"command,omitempty"`
	CustomMetrics          *CustomMetrics `json:"custom_metrics,omitempty"`

	Exposure  *Exposure  `json:"exposure,omitempty"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`

	// service only
	Healthcheck *Healthcheck `json:"healthcheck,omitempty"`

	// cron only
	Schedule          string `json:"schedule,omitempty"`
	ConcurrencyPolicy string `json:"concurrency_policy,omitempty"`
}

// Request body to create a component.
type CreateRequest struct {
	InstanceId string    `json:"instance_uuid"`
	Name       string    `json:"name"`
	URL        *string   `json:"url,omitempty"`
	Enabled    *bool     `json:"enabled,omitempty"`
	Settings   *Settings `json:"settings"`
}

// Request body to update a component. Absent fields are left unchanged.
type UpdateRequest struct {
	Name     *string   `json:"name,omitempty"`
	URL      *string   `json:"url,omitempty"`
	Enabled  *bool     `json:"enabled,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
}

type Detail struct {
	Id         string          `json:"uuid"`
	InstanceId string          `json:"instance_uuid"`
	Name       string          `json:"name"`
	Kind       string          `json:"type"`
	URL        *string         `json:"url"`
	Enabled    bool            `json:"enabled"`
	Settings   Settings        `json:"settings"`
	CreatedAt  rfctime.RFC3339 `json:"created_at"`
	UpdatedAt  rfctime.RFC3339 `json:"updated_at"`
}

// Response of deleting a component.
type DeleteResult struct {
	Id string `json:"uuid"`

	// "done", "failed" or "skipped"
	Cleanup string `json:"cleanup"`

	// Why cleanup on cluster failed. Empty unless Cleanup is "failed".
	Message string `json:"message,omitempty"`
}
