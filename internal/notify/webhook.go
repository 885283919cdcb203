// Package notify publishes finished run reports: as a JSON webhook POST and
// as key=value lines in a CI workflow outputs file.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/drivemirror/internal/mirror"
	"github.com/tonimelisma/drivemirror/internal/retry"
)

// maxErrorBody caps how much of a failed webhook response is kept.
const maxErrorBody = 512

// StatusError is a non-2xx webhook response. It implements the retry
// package's HTTPStatus and RetryAfterHeader methods.
type StatusError struct {
	StatusCode int
	RetryAfter string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("notify: webhook returned HTTP %d", e.StatusCode)
	}

	return fmt.Sprintf("notify: webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// RetryAfterHeader returns the raw Retry-After header.
func (e *StatusError) RetryAfterHeader() string { return e.RetryAfter }

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Event     string        `json:"event"`
	SourceDir string        `json:"source_dir"`
	DriveID   string        `json:"drive_id"`
	FolderID  string        `json:"folder_id"`
	Succeeded bool          `json:"succeeded"`
	Report    mirror.Report `json:"report"`
}

// eventRunFinished is the only event type sent today.
const eventRunFinished = "run.finished"

// NewPayload builds the webhook body for a finished run.
func NewPayload(sourceDir string, remote mirror.RemoteLocation, report mirror.Report) Payload {
	return Payload{
		Event:     eventRunFinished,
		SourceDir: sourceDir,
		DriveID:   remote.DriveID,
		FolderID:  remote.FolderID,
		Succeeded: report.Succeeded(),
		Report:    report,
	}
}

// Webhook posts payloads to a fixed URL under a retry executor.
type Webhook struct {
	url        string
	httpClient *http.Client
	exec       *retry.Executor
	userAgent  string
	logger     *slog.Logger
}

// NewWebhook creates a Webhook. exec should use retry.PublishPolicy.
func NewWebhook(url string, httpClient *http.Client, exec *retry.Executor, userAgent string, logger *slog.Logger) *Webhook {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Webhook{
		url:        url,
		httpClient: httpClient,
		exec:       exec,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Send posts p. Each attempt sends a fresh copy of the encoded body.
func (w *Webhook) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: encoding payload: %w", err)
	}

	err = w.exec.Do(ctx, "webhook", func(ctx context.Context) error {
		return w.post(ctx, body)
	})
	if err != nil {
		return err
	}

	w.logger.Info("webhook delivered", slog.String("run_id", p.Report.RunID))

	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	return &StatusError{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
		Body:       string(bytes.TrimSpace(snippet)),
	}
}
