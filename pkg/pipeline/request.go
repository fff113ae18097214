package pipeline

import (
	"fmt"
	"time"
)

// Request holds everything the operator asked for. It is built once at
// entry and never mutated during a run.
type Request struct {
	Environment       string        `json:"environment"`
	Tag               string        `json:"tag"`
	DryRun            bool          `json:"dryRun"`
	SkipValidation    bool          `json:"skipValidation"`
	AutoPromote       bool          `json:"autoPromote"`
	DeploymentTimeout time.Duration `json:"deploymentTimeout"`
	ValidationTimeout time.Duration `json:"validationTimeout"`
	RollbackTimeout   time.Duration `json:"rollbackTimeout"`
	NotifyTargets     []string      `json:"notifyTargets"`
}

func (r *Request) Validate() error {
	if r.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if r.Tag == "" {
		return fmt.Errorf("image tag is required")
	}
	if r.DeploymentTimeout <= 0 {
		return fmt.Errorf("deployment timeout must be positive")
	}
	if r.ValidationTimeout <= 0 {
		return fmt.Errorf("validation timeout must be positive")
	}
	if r.RollbackTimeout <= 0 {
		return fmt.Errorf("rollback timeout must be positive")
	}
	return nil
}
