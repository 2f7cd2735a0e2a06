package domain_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opst/knitfleet/pkg/domain"
	domerr "github.com/opst/knitfleet/pkg/domain/errors"
	"github.com/opst/knitfleet/pkg/utils/try"
)

func validCommon() domain.CommonSettings {
	return domain.CommonSettings{CPU: 0.5, Memory: 256}.WithDefaults()
}

func TestCommonSettings_WithDefaults(t *testing.T) {
	actual := domain.CommonSettings{
		CPU: 1, Memory: 512,
		CustomMetrics: &domain.CustomMetrics{Enabled: true, Port: 9090},
	}.WithDefaults()

	expected := domain.CommonSettings{
		CPU: 1, Memory: 512,
		Autoscaling:            domain.Autoscaling{Min: 2, Max: 10},
		CPUScalingThreshold:    80,
		MemoryScalingThreshold: 80,
		Envs:                   []domain.EnvVar{},
		CustomMetrics:          &domain.CustomMetrics{Enabled: true, Path: "/metrics", Port: 9090},
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("unexpected defaults (-want +got):\n%s", diff)
	}
}

func TestHealthcheck_WithDefaults(t *testing.T) {
	actual := domain.Healthcheck{Protocol: domain.HealthcheckTCP}.WithDefaults()
	expected := domain.Healthcheck{
		Path: "/healthcheck", Protocol: domain.HealthcheckTCP, Port: 80,
		Timeout: 3, Interval: 15, InitialInterval: 15, FailureThreshold: 2,
	}
	if actual != expected {
		t.Errorf("unexpected defaults: %+v", actual)
	}
}

func TestSettings_Validate(t *testing.T) {
	type when struct {
		settings domain.Settings
	}
	type then struct {
		invalid bool
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			err := when.settings.Validate()
			if then.invalid {
				if !errors.Is(err, domerr.ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, but got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}

	t.Run("service with valid settings", theory(
		when{settings: &domain.ServiceSettings{
			CommonSettings: validCommon(), Exposure: domain.DefaultServiceExposure(),
		}},
		then{invalid: false},
	))

	t.Run("service with unknown visibility", theory(
		when{settings: &domain.ServiceSettings{
			CommonSettings: validCommon(),
			Exposure:       domain.Exposure{Type: "http", Port: 80, Visibility: "internal"},
		}},
		then{invalid: true},
	))

	t.Run("service with port out of range", theory(
		when{settings: &domain.ServiceSettings{
			CommonSettings: validCommon(),
			Exposure:       domain.Exposure{Type: "tcp", Port: 70000, Visibility: "cluster"},
		}},
		then{invalid: true},
	))

	t.Run("service with unknown healthcheck protocol", theory(
		when{settings: &domain.ServiceSettings{
			CommonSettings: validCommon(),
			Exposure:       domain.DefaultServiceExposure(),
			Healthcheck:    &domain.Healthcheck{Protocol: "grpc"},
		}},
		then{invalid: true},
	))

	t.Run("worker without exposure", theory(
		when{settings: &domain.WorkerSettings{CommonSettings: validCommon()}},
		then{invalid: false},
	))

	t.Run("worker with min replicas larger than max", theory(
		when{settings: &domain.WorkerSettings{CommonSettings: func() domain.CommonSettings {
			c := validCommon()
			c.Autoscaling = domain.Autoscaling{Min: 5, Max: 3}
			return c
		}()}},
		then{invalid: true},
	))

	t.Run("worker with env without key", theory(
		when{settings: &domain.WorkerSettings{CommonSettings: func() domain.CommonSettings {
			c := validCommon()
			c.Envs = []domain.EnvVar{{Key: " ", Value: "v"}}
			return c
		}()}},
		then{invalid: true},
	))

	t.Run("job with schedule", theory(
		when{settings: &domain.JobSettings{CommonSettings: validCommon(), Schedule: "*/5 * * * *"}},
		then{invalid: false},
	))

	t.Run("job without schedule", theory(
		when{settings: &domain.JobSettings{CommonSettings: validCommon(), Schedule: "  "}},
		then{invalid: true},
	))

	t.Run("job with broken schedule", theory(
		when{settings: &domain.JobSettings{CommonSettings: validCommon(), Schedule: "every minute"}},
		then{invalid: true},
	))

	t.Run("job with unknown concurrency policy", theory(
		when{settings: &domain.JobSettings{
			CommonSettings: validCommon(), Schedule: "0 * * * *", ConcurrencyPolicy: "Sometimes",
		}},
		then{invalid: true},
	))
}

func TestSettings_Document(t *testing.T) {
	t.Run("settings are restored from their document by kind", func(t *testing.T) {
		exposure := domain.DefaultPrivateExposure()
		original := &domain.JobSettings{
			CommonSettings: validCommon(),
			Exposure:       &exposure,
			Schedule:       "0 3 * * *",
		}
		original.Command = []string{"python", "-m", "batch"}

		doc := try.To(domain.MarshalSettings(original)).OrFatal(t)
		restored := try.To(domain.UnmarshalSettings(domain.KindJob, doc)).OrFatal(t)

		if diff := cmp.Diff(original, restored); diff != "" {
			t.Errorf("settings changed (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		if _, err := domain.UnmarshalSettings("daemon", []byte(`{}`)); !errors.Is(err, domain.ErrUnknownKind) {
			t.Errorf("expected ErrUnknownKind, but got %v", err)
		}
	})
}
