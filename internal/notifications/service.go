package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"subclean/internal/config"
)

const userAgent = "subclean/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventRunCompleted Event = "run_completed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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
		runCompleted: cfg.Notifications.RunCompleted,
		errors:       cfg.Notifications.Errors,
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
	runCompleted bool
	errors       bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, p Payload) error {
	var data payload
	switch event {
	case EventRunCompleted:
		if !n.runCompleted {
			return nil
		}
		data = runCompletedPayload(p)
	case EventError:
		if !n.errors {
			return nil
		}
		data = errorPayload(p)
	case EventTest:
		data = payload{
			title:    "subclean - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"subclean", "test"},
			priority: "low",
		}
	default:
		return nil
	}
	return n.send(ctx, data)
}

func runCompletedPayload(p Payload) payload {
	classification := p.text("classification")
	runID := p.text("runID")
	var builder strings.Builder
	switch classification {
	case "success":
		builder.WriteString("✅ Run complete")
	case "partial":
		builder.WriteString("⚠️ Run partially complete")
	default:
		builder.WriteString("❌ Run failed")
	}
	if runID != "" {
		builder.WriteString(": ")
		builder.WriteString(runID)
	}
	if frames := p.text("frames"); frames != "" {
		fmt.Fprintf(&builder, "\nFrames: %s", frames)
	}
	if output := p.text("output"); output != "" {
		fmt.Fprintf(&builder, "\nOutput: %s", output)
	}
	if d, ok := p["duration"].(time.Duration); ok && d > 0 {
		fmt.Fprintf(&builder, "\nDuration: %s", d.Round(time.Second))
	}

	data := payload{
		message: builder.String(),
		tags:    []string{"subclean", "run", classification},
	}
	switch classification {
	case "success":
		data.title = "subclean - Run Complete"
	case "partial":
		data.title = "subclean - Run Complete (partial)"
	default:
		data.title = "subclean - Run Failed"
		data.priority = "high"
	}
	return data
}

func errorPayload(p Payload) payload {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if label := p.text("context"); label != "" {
		builder.WriteString(" with ")
		builder.WriteString(label)
	}
	builder.WriteString(": ")
	if msg := p.text("error"); msg != "" {
		builder.WriteString(msg)
	} else {
		builder.WriteString("unknown")
	}
	return payload{
		title:    "subclean - Error",
		message:  builder.String(),
		tags:     []string{"subclean", "error", "alert"},
		priority: "high",
	}
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
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
	if data.priority != "" {
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

// Noop returns a service that discards every event.
func Noop() Service {
	return noopService{}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
