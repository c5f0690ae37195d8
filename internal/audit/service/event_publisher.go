package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

// PublisherConfig configures the optional sinks of a Publisher.
type PublisherConfig struct {
	WebhookURL     string
	WebhookTimeout time.Duration
	// CEFWriter receives one CEF line per event. Typically a lumberjack.Logger.
	CEFWriter io.Writer
}

// Publisher fans security events out to the structured log, the event store,
// a CEF writer and an HTTP webhook. Sink failures are logged and swallowed.
type Publisher struct {
	logger     *slog.Logger
	store      EventStore
	client     *http.Client
	webhookURL string
	cef        io.Writer

	cefMu    sync.Mutex
	inflight sync.WaitGroup
}

// NewPublisher creates a Publisher. store may be nil.
func NewPublisher(logger *slog.Logger, store EventStore, cfg PublisherConfig) *Publisher {
	timeout := cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{
		logger:     logger,
		store:      store,
		client:     &http.Client{Timeout: timeout},
		webhookURL: cfg.WebhookURL,
		cef:        cfg.CEFWriter,
	}
}

// Publish records the event on every configured sink. Webhook delivery runs in the
// background and is awaited by Close.
func (p *Publisher) Publish(ctx context.Context, event auditDomain.SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.logger.Warn("security event",
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity.String()),
		slog.String("source", event.Source),
		slog.String("action", event.Action),
		slog.String("user_id", event.UserID),
		slog.String("ip_address", event.IPAddress),
		slog.String("resource_type", event.ResourceType),
		slog.String("resource_id", event.ResourceID),
		slog.String("outcome", event.Outcome),
		slog.String("reason", event.Reason),
	)

	if p.store != nil {
		if err := p.store.CreateSecurityEvent(ctx, &event); err != nil {
			p.logger.Error("failed to persist security event",
				slog.String("event_type", event.EventType), slog.Any("error", err))
		}
	}

	if p.cef != nil {
		line := FormatCEF(event)
		p.cefMu.Lock()
		_, err := io.WriteString(p.cef, line+"\n")
		p.cefMu.Unlock()
		if err != nil {
			p.logger.Error("failed to write cef line", slog.Any("error", err))
		}
	}

	if p.webhookURL != "" {
		p.inflight.Add(1)
		go func() {
			defer p.inflight.Done()
			p.deliver(context.WithoutCancel(ctx), event)
		}()
	}
}

func (p *Publisher) deliver(ctx context.Context, event auditDomain.SecurityEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode webhook payload", slog.Any("error", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to build webhook request", slog.Any("error", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("siem webhook delivery failed", slog.Any("error", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		p.logger.Warn("siem webhook rejected event",
			slog.Int("status_code", resp.StatusCode), slog.String("event_id", event.ID))
	}
}

// Close waits for in-flight webhook deliveries and closes the CEF writer when it is closable.
func (p *Publisher) Close() error {
	p.inflight.Wait()
	if c, ok := p.cef.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FormatCEF renders an event as an ArcSight CEF line.
func FormatCEF(event auditDomain.SecurityEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CEF:0|IVF|VaultSecurity|1.0|%s|%s|%d|",
		auditDomain.CEFEscape(event.EventType),
		auditDomain.CEFEscape(event.Action),
		int(event.Severity),
	)

	ext := []string{
		"suid=" + auditDomain.CEFEscape(event.UserID),
		"src=" + auditDomain.CEFEscape(event.IPAddress),
		"cs1=" + auditDomain.CEFEscape(event.ResourceType),
		"cs1Label=ResourceType",
		"cs2=" + auditDomain.CEFEscape(event.ResourceID),
		"cs2Label=ResourceId",
		"outcome=" + auditDomain.CEFEscape(event.Outcome),
		"reason=" + auditDomain.CEFEscape(event.Reason),
		"rt=" + event.Timestamp.UTC().Format(time.RFC3339),
	}

	keys := make([]string, 0, len(event.Extensions))
	for k := range event.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ext = append(ext, auditDomain.CEFEscape(k)+"="+auditDomain.CEFEscape(event.Extensions[k]))
	}

	b.WriteString(strings.Join(ext, " "))
	return b.String()
}

// NoopPublisher drops every event. Used when no security sink is wired.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, auditDomain.SecurityEvent) {}
