package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/cluster"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/conftools"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/envconfig"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/executor"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/lock"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/logging"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/metrics"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/notify"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/pipeline"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/prereq"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/report"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/telemetry"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/validation"
	"github.com/AgenticTony/voicehive-hotels-sub000/pkg/version"

	log "github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
)

func main() {
	err := run()
	if err == nil {
		return
	}
	log.Errorf("fatal: %s", err)
	os.Exit(int(pipeline.ExitFailure))
}

func run() error {
	// Configuration and context
	cfg := initConfig()
	err := conftools.Load(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logging
	err = logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	// Welcome
	log.Infof("voicehive deploy %s", version.Version())
	ts, err := version.BuildTime()
	if err == nil {
		log.Infof("This version was built %s", ts.Local())
	}

	for _, line := range conftools.Format(nil) {
		log.Debug(line)
	}

	if len(cfg.OtelCollectorEndpoint) > 0 {
		tracerProvider, err := telemetry.New(ctx, "deploy", cfg.OtelCollectorEndpoint)
		if err != nil {
			return fmt.Errorf("set up telemetry: %w", err)
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Error(err)
			}
		}()
	}

	if len(cfg.MetricsListenAddr) > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.MetricsPath, metrics.Handler())
			log.Infof("Serving metrics on %s endpoint %s", cfg.MetricsListenAddr, cfg.MetricsPath)
			err := http.ListenAndServe(cfg.MetricsListenAddr, mux)
			if err != nil {
				log.Errorf("Metrics listener: %s", err)
			}
		}()
	}

	// Cluster access
	restConfig, err := cluster.RestConfig(cfg.Kubeconfig)
	if err != nil {
		return err
	}
	clusterClient, err := cluster.New(restConfig)
	if err != nil {
		return err
	}
	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return err
	}

	resolver := &envconfig.Resolver{
		Dir:     cfg.ConfigDir,
		Cluster: clusterClient,
	}

	// Peek at the environment configuration to place the deployment lock
	// and seed notification defaults. Errors surface later through the
	// prerequisite stage, with proper reporting.
	lockNamespace := "default"
	var env *envconfig.Environment
	if rendered, err := resolver.Generate(cfg.Environment); err == nil {
		env = rendered.Environment
		lockNamespace = env.Namespace
	}

	p := &pipeline.Pipeline{
		Prereqs: &prereq.Checker{
			Cluster:  clusterClient,
			Resolver: resolver,
		},
		Resolver: resolver,
		Executor: &executor.Executor{
			Cluster: clusterClient,
		},
		Validator: &validation.Runner{
			Cluster: clusterClient,
		},
		Locker:   lock.NewLeaseLocker(kubeClient, lockNamespace),
		Notifier: buildNotifier(cfg, env),
	}

	request := pipeline.Request{
		Environment:       cfg.Environment,
		Tag:               cfg.Tag,
		DryRun:            cfg.DryRun,
		SkipValidation:    cfg.SkipValidation,
		AutoPromote:       cfg.AutoPromote,
		DeploymentTimeout: cfg.DeploymentTimeout,
		ValidationTimeout: cfg.ValidationTimeout,
		RollbackTimeout:   cfg.RollbackTimeout,
		NotifyTargets:     cfg.NotifyTargets,
	}

	if cfg.Promote {
		return p.Promote(ctx, request)
	}

	err = request.Validate()
	if err != nil {
		return err
	}

	result, runErr := p.Run(ctx, request)

	writer := &report.Writer{Dir: cfg.ReportDir}
	if _, err := writer.Persist(result); err != nil {
		log.Errorf("Persist deployment report: %s", err)
	}

	log.Infof("Deployment finished: %s", report.Summary(result))

	if runErr != nil {
		return runErr
	}
	if result.ExitCode() != pipeline.ExitSuccess {
		return fmt.Errorf("deployment ended in state %s", result.FinalState)
	}
	return nil
}

// buildNotifier maps operator-supplied targets onto senders. Targets
// containing '@' are email recipients, everything else is a webhook URL.
func buildNotifier(cfg *Config, env *envconfig.Environment) *notify.Router {
	senders := make([]notify.Sender, 0)
	recipients := make([]string, 0)

	for _, target := range cfg.NotifyTargets {
		if strings.Contains(target, "@") && !strings.HasPrefix(target, "http") {
			recipients = append(recipients, target)
		} else {
			senders = append(senders, notify.NewWebhookSender(target))
		}
	}

	if len(recipients) > 0 && env != nil && len(env.Notifications.SMTPRelay) > 0 {
		senders = append(senders, notify.NewEmailSender(env.Notifications.SMTPRelay, env.Notifications.EmailFrom, recipients))
	} else if len(recipients) > 0 {
		log.Warnf("Email notification targets configured, but the environment defines no SMTP relay")
	}

	return notify.NewRouter(senders...)
}
