package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"subflow/internal/config"
	"subflow/internal/pipeline"
)

const userAgent = "subflow/0.1"

// Service is the notification surface used by the orchestrator and CLI.
type Service interface {
	RunFinished(ctx context.Context, result pipeline.Result) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		onSuccess: cfg.Notifications.OnSuccess,
		client:    &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	onSuccess bool
	client    *http.Client
}

func (n *ntfyService) RunFinished(ctx context.Context, result pipeline.Result) error {
	name := filepath.Base(result.MediaPath)
	switch result.State {
	case pipeline.StageDone:
		if !n.onSuccess {
			return nil
		}
		return n.send(ctx, completedPayload(name, result))
	case pipeline.StageCancelled:
		return n.send(ctx, payload{
			title:   "subflow - Cancelled",
			message: fmt.Sprintf("Run cancelled: %s (%d segments)", name, len(result.Segments)),
			tags:    []string{"subflow", "run", "cancelled"},
		})
	default:
		return n.send(ctx, failedPayload(name, result))
	}
}

func completedPayload(name string, result pipeline.Result) payload {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Subtitles ready: %s (%d segments)", name, len(result.Segments))
	if result.TranslationPath != "" {
		fmt.Fprintf(&b, "\nTranslated to %s", result.TargetLanguage)
	}
	if result.MixedAudioPath != "" {
		fmt.Fprintf(&b, "\nDubbed track: %s", filepath.Base(result.MixedAudioPath))
	}
	tags := []string{"subflow", "run", "completed"}
	if result.Degraded {
		b.WriteString("\nSome optional stages were unavailable")
		tags = append(tags, "degraded")
	}
	if result.FromCache {
		tags = append(tags, "cached")
	}
	return payload{
		title:   "subflow - Complete",
		message: b.String(),
		tags:    tags,
	}
}

func failedPayload(name string, result pipeline.Result) payload {
	message := fmt.Sprintf("❌ Run failed: %s", name)
	if kind := strings.TrimSpace(string(result.ErrorKind)); kind != "" {
		message += " (" + kind + ")"
	}
	if detail := strings.TrimSpace(result.Error); detail != "" {
		message += "\n" + detail
	}
	return payload{
		title:    "subflow - Error",
		message:  message,
		tags:     []string{"subflow", "error", "alert"},
		priority: "high",
	}
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "subflow - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"subflow", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) RunFinished(context.Context, pipeline.Result) error { return nil }
func (noopService) TestNotification(context.Context) error             { return nil }
