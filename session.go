package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/drivemirror/internal/config"
	"github.com/tonimelisma/drivemirror/internal/credential"
	"github.com/tonimelisma/drivemirror/internal/graph"
	"github.com/tonimelisma/drivemirror/internal/history"
	"github.com/tonimelisma/drivemirror/internal/mirror"
	"github.com/tonimelisma/drivemirror/internal/notify"
	"github.com/tonimelisma/drivemirror/internal/retry"
)

// Publish retry tuning for webhook delivery.
const (
	webhookMaxRetries  = 3
	webhookBaseBackoff = 1 * time.Second
)

// idleConnTimeout bounds how long keep-alive connections stay open.
const idleConnTimeout = 90 * time.Second

// runSession holds everything a sync run needs. It is built once and reused
// across runs in watch mode.
type runSession struct {
	cc      *CLIContext
	engine  *mirror.Engine
	opts    mirror.Options
	history *history.Store // nil when disabled
	webhook *notify.Webhook
}

// newHTTPClient builds a client with per-phase timeouts from config. There
// is no overall request timeout: large uploads legitimately take long.
func newHTTPClient(nc config.NetworkConfig) *http.Client {
	connect := nc.ConnectTimeoutDuration()

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: nc.DataTimeoutDuration(),
			IdleConnTimeout:       idleConnTimeout,
			ForceAttemptHTTP2:     true,
		},
	}
}

// userAgent returns the configured User-Agent or the versioned default.
func userAgent(nc config.NetworkConfig) string {
	if nc.UserAgent != "" {
		return nc.UserAgent
	}

	return "drivemirror/" + version
}

// mirrorOptions maps resolved config onto engine options.
func mirrorOptions(cfg *config.Config) mirror.Options {
	return mirror.Options{
		Remote: mirror.RemoteLocation{
			DriveID:  cfg.Remote.DriveID,
			FolderID: cfg.Remote.FolderID,
		},
		SyncRoot: cfg.Sync.SourceDir,
		Delay:    cfg.Sync.RequestDelayDuration(),
		Scan: mirror.ScanOptions{
			SkipDotfiles: cfg.Sync.SkipDotfiles,
			Exclude:      cfg.Sync.Exclude,
		},
		VerifyUploads: cfg.Sync.VerifyUploads,
	}
}

// graphExecutor builds the retry executor for Graph calls from config.
func graphExecutor(rc config.RetryConfig, cc *CLIContext) *retry.Executor {
	policy := retry.GraphPolicy(rc.MaxRetries, rc.BaseBackoffDuration())
	policy.MaxBackoff = rc.MaxBackoffDuration()

	return retry.New(policy, cc.Logger)
}

// newRunSession wires credentials, the Graph client, the engine, and the
// optional history store and webhook. ctx must outlive the session.
func newRunSession(ctx context.Context, cc *CLIContext) (*runSession, error) {
	cfg := cc.Cfg

	if err := config.ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("incomplete configuration: %w", err)
	}

	tokens, err := credential.NewSource(ctx, credential.Options{
		AccessToken: cc.Env.AccessToken,
		TokenFile:   cfg.Auth.TokenFile,
		ClientID:    cfg.Auth.ClientID,
		Tenant:      cfg.Auth.Tenant,
	}, cc.Logger)
	if err != nil {
		return nil, err
	}

	httpClient := newHTTPClient(cfg.Network)
	ua := userAgent(cfg.Network)

	client := graph.NewClient(cfg.Network.GraphBaseURL, httpClient, tokens, cc.Logger, ua)
	engine := mirror.NewEngine(client, graphExecutor(cfg.Retry, cc), cc.Logger)

	s := &runSession{
		cc:     cc,
		engine: engine,
		opts:   mirrorOptions(cfg),
	}

	if path := cfg.State.HistoryPath(); path != "" {
		store, err := history.Open(ctx, path, cc.Logger)
		if err != nil {
			return nil, err
		}

		s.history = store
	}

	if cfg.Notify.WebhookURL != "" {
		exec := retry.New(retry.PublishPolicy(webhookMaxRetries, webhookBaseBackoff), cc.Logger)
		s.webhook = notify.NewWebhook(cfg.Notify.WebhookURL, httpClient, exec, ua, cc.Logger)
	}

	return s, nil
}

// Close releases the history store.
func (s *runSession) Close() error {
	if s.history == nil {
		return nil
	}

	return s.history.Close()
}

// run performs one sync and publishes its report to history and the
// webhook. Publishing failures are logged; they never mask the run result.
func (s *runSession) run(ctx context.Context) (mirror.Report, error) {
	report, runErr := s.engine.Run(ctx, s.opts)
	s.publish(ctx, report)

	return report, runErr
}

func (s *runSession) publish(ctx context.Context, report mirror.Report) {
	logger := s.cc.Logger.With(slog.String("run_id", report.RunID))

	// Publishing still happens after an interrupt, so the record survives.
	pctx := context.WithoutCancel(ctx)

	if s.history != nil {
		err := s.history.Record(pctx, history.Run{
			SourceDir: s.opts.SyncRoot,
			DriveID:   s.opts.Remote.DriveID,
			FolderID:  s.opts.Remote.FolderID,
			Report:    report,
		})
		if err != nil {
			logger.Warn("recording run history failed", slog.String("error", err.Error()))
		}
	}

	if s.webhook != nil {
		if err := s.webhook.Send(pctx, notify.NewPayload(s.opts.SyncRoot, s.opts.Remote, report)); err != nil {
			logger.Warn("webhook notification failed", slog.String("error", err.Error()))
		}
	}
}
