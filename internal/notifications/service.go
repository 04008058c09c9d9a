package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"harvest/internal/config"
)

const userAgent = "Harvest-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyHarvestCompleted(ctx context.Context, source string, downloaded, skipped int) error
	NotifyImportCompleted(ctx context.Context, created, duplicates, errors int) error
	NotifyQueueDrained(ctx context.Context, kind string, processed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		queueEnabled: cfg.Notifications.Queue,
		importEnable: cfg.Notifications.Import,
		errorsEnable: cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	queueEnabled bool
	importEnable bool
	errorsEnable bool
}

func (n *ntfyService) NotifyHarvestCompleted(ctx context.Context, source string, downloaded, skipped int) error {
	if !n.queueEnabled {
		return nil
	}
	source = strings.TrimSpace(source)
	message := fmt.Sprintf("Harvest complete for %s: %d downloaded", source, downloaded)
	if skipped > 0 {
		message = fmt.Sprintf("%s, %d skipped", message, skipped)
	}
	data := payload{
		title:   "Harvest - Source Complete",
		message: message,
		tags:    []string{"harvest", "producer", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyImportCompleted(ctx context.Context, created, duplicates, errors int) error {
	if !n.importEnable {
		return nil
	}
	var title string
	message := fmt.Sprintf("Import complete: %d new, %d duplicates", created, duplicates)
	if errors == 0 {
		title = "Harvest - Import Complete"
	} else {
		title = "Harvest - Import Complete (with errors)"
		message = fmt.Sprintf("%s, %d errors", message, errors)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"harvest", "import", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, kind string, processed int, duration time.Duration) error {
	if !n.queueEnabled {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Harvest - Queue Drained",
		message: fmt.Sprintf("Drained %s queue: %d jobs in %s", kind, processed, duration),
		tags:    []string{"harvest", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errorsEnable {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Harvest - Error",
		message:  builder.String(),
		tags:     []string{"harvest", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Harvest - Test",
		message:  "Notification system test",
		tags:     []string{"harvest", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyHarvestCompleted(context.Context, string, int, int) error { return nil }
func (noopService) NotifyImportCompleted(context.Context, int, int, int) error     { return nil }
func (noopService) NotifyQueueDrained(context.Context, string, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
