package envconfig

import (
	"errors"
	"fmt"
)

var (
	ErrNameRequired       = errors.New("environment name is required")
	ErrTierRequired       = errors.New("environment tier is required")
	ErrNamespaceRequired  = errors.New("target namespace is required")
	ErrApplicationInvalid = errors.New("application identity is incomplete; name, rollout, image-repository and selector are all required")
	ErrDatastoresInvalid  = errors.New("at least the PMS datastore endpoint is required")
	ErrSecurityRequired   = errors.New("security block with explicit mode flags is required")
	ErrMonitoringRequired = errors.New("monitoring block with an explicit enabled flag is required")
	ErrMetricsURLRequired = errors.New("monitoring is enabled but no metrics URL is configured")
)

// Environment is the declarative configuration of a single deployment target.
// One YAML document per environment lives in the resolver's config directory.
type Environment struct {
	Name          string        `json:"name"`
	Tier          string        `json:"tier"`
	Namespace     string        `json:"namespace"`
	Application   Application   `json:"application"`
	Datastores    Datastores    `json:"datastores"`
	Security      *Security     `json:"security"`
	Monitoring    *Monitoring   `json:"monitoring"`
	Smoke         Smoke         `json:"smoke"`
	Notifications Notifications `json:"notifications"`
}

type Application struct {
	Name            string `json:"name"`
	Rollout         string `json:"rollout"`
	ImageRepository string `json:"image-repository"`
	Selector        string `json:"selector"`
}

type Datastores struct {
	PMS      string `json:"pms"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

type Security struct {
	RunAsNonRoot           bool     `json:"run-as-non-root"`
	ReadOnlyRootFilesystem bool     `json:"read-only-root-filesystem"`
	RequireNetworkPolicies bool     `json:"require-network-policies"`
	SecretKeys             []string `json:"secret-keys"`
}

type Monitoring struct {
	Enabled          *bool  `json:"enabled"`
	MetricsURL       string `json:"metrics-url"`
	MetricsNamespace string `json:"metrics-namespace"`
}

type Smoke struct {
	BaseURL                string `json:"base-url"`
	ReadinessPath          string `json:"readiness-path"`
	LivenessPath           string `json:"liveness-path"`
	StartupPath            string `json:"startup-path"`
	AuthProbePath          string `json:"auth-probe-path"`
	LatencyThresholdMillis int    `json:"latency-threshold-millis"`
}

type Notifications struct {
	SMTPRelay string `json:"smtp-relay"`
	EmailFrom string `json:"email-from"`
}

// MonitoringEnabled is true only when the flag is explicitly set to true.
func (e *Environment) MonitoringEnabled() bool {
	return e.Monitoring != nil && e.Monitoring.Enabled != nil && *e.Monitoring.Enabled
}

func (e *Environment) Validate() error {
	if len(e.Name) == 0 {
		return ErrNameRequired
	}
	if len(e.Tier) == 0 {
		return fmt.Errorf("environment %q: %w", e.Name, ErrTierRequired)
	}
	if len(e.Namespace) == 0 {
		return fmt.Errorf("environment %q: %w", e.Name, ErrNamespaceRequired)
	}
	app := e.Application
	if len(app.Name) == 0 || len(app.Rollout) == 0 || len(app.ImageRepository) == 0 || len(app.Selector) == 0 {
		return fmt.Errorf("environment %q: %w", e.Name, ErrApplicationInvalid)
	}
	if len(e.Datastores.PMS) == 0 {
		return fmt.Errorf("environment %q: %w", e.Name, ErrDatastoresInvalid)
	}
	if e.Security == nil {
		return fmt.Errorf("environment %q: %w", e.Name, ErrSecurityRequired)
	}
	if e.Monitoring == nil || e.Monitoring.Enabled == nil {
		return fmt.Errorf("environment %q: %w", e.Name, ErrMonitoringRequired)
	}
	if *e.Monitoring.Enabled && len(e.Monitoring.MetricsURL) == 0 {
		return fmt.Errorf("environment %q: %w", e.Name, ErrMetricsURLRequired)
	}
	return nil
}
