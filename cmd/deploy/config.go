package main

import (
	"errors"
	"time"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/conftools"
	flag "github.com/spf13/pflag"
)

type Config struct {
	LogFormat             string        `json:"log-format"`
	LogLevel              string        `json:"log-level"`
	Environment           string        `json:"environment"`
	Tag                   string        `json:"tag"`
	DryRun                bool          `json:"dry-run"`
	SkipValidation        bool          `json:"skip-validation"`
	AutoPromote           bool          `json:"auto-promote"`
	Promote               bool          `json:"promote"`
	DeploymentTimeout     time.Duration `json:"deployment-timeout"`
	ValidationTimeout     time.Duration `json:"validation-timeout"`
	RollbackTimeout       time.Duration `json:"rollback-timeout"`
	NotifyTargets         []string      `json:"notify-target"`
	ConfigDir             string        `json:"config-dir"`
	ReportDir             string        `json:"report-dir"`
	Kubeconfig            string        `json:"kubeconfig"`
	MetricsListenAddr     string        `json:"metrics-listen-address"`
	MetricsPath           string        `json:"metrics-path"`
	OtelCollectorEndpoint string        `json:"otel-collector-endpoint"`
}

const (
	LogFormat             = "log-format"
	LogLevel              = "log-level"
	Environment           = "environment"
	Tag                   = "tag"
	DryRun                = "dry-run"
	SkipValidation        = "skip-validation"
	AutoPromote           = "auto-promote"
	Promote               = "promote"
	DeploymentTimeout     = "deployment-timeout"
	ValidationTimeout     = "validation-timeout"
	RollbackTimeout       = "rollback-timeout"
	NotifyTargets         = "notify-target"
	ConfigDir             = "config-dir"
	ReportDir             = "report-dir"
	Kubeconfig            = "kubeconfig"
	MetricsListenAddr     = "metrics-listen-address"
	MetricsPath           = "metrics-path"
	OtelCollectorEndpoint = "otel-collector-endpoint"
)

var help = `
deploy runs a blue-green deployment of the VoiceHive platform against a
target environment, validates the candidate, and promotes or rolls back.
`

func initConfig() *Config {
	flag.ErrHelp = errors.New(help)

	conftools.Initialize("deploy")

	flag.String(LogFormat, "text", "Log format, either 'json' or 'text'.")
	flag.String(LogLevel, "info", "Logging verbosity level.")
	flag.String(Environment, "production", "Name of the environment to deploy to.")
	flag.String(Tag, "", "Image tag to deploy. Required.")
	flag.Bool(DryRun, false, "Walk through the pipeline without mutating the cluster.")
	flag.Bool(SkipValidation, false, "Skip post-deployment validation. Explicit operator opt-out.")
	flag.Bool(AutoPromote, false, "Promote automatically when validation passes.")
	flag.Bool(Promote, false, "Promote a deployment left awaiting manual promotion, then exit.")
	flag.Duration(DeploymentTimeout, time.Second*600, "Time to wait for the rollout to become healthy.")
	flag.Duration(ValidationTimeout, time.Second*300, "Time budget for post-deployment validation.")
	flag.Duration(RollbackTimeout, time.Second*120, "Time budget for restoring the previous state.")
	flag.StringSlice(NotifyTargets, []string{}, "Notification target, a webhook URL or an email address. Can be specified multiple times.")
	flag.String(ConfigDir, "environments", "Directory holding per-environment configuration files.")
	flag.String(ReportDir, "reports", "Directory where deployment reports are written.")
	flag.String(Kubeconfig, "", "Path to kubeconfig file. Uses in-cluster configuration when empty.")
	flag.String(MetricsListenAddr, "", "Serve metrics on this address. Disabled when empty.")
	flag.String(MetricsPath, "/metrics", "Serve metrics on this endpoint.")
	flag.String(OtelCollectorEndpoint, "", "OpenTelemetry collector endpoint. Tracing is disabled when empty.")

	return &Config{}
}
