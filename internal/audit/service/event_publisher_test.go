package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/keyvault/internal/audit/domain"
)

type failingStore struct {
	calls int
}

func (s *failingStore) CreateSecurityEvent(context.Context, *auditDomain.SecurityEvent) error {
	s.calls++
	return errors.New("database down")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatCEF(t *testing.T) {
	event := auditDomain.SecurityEvent{
		EventType:    auditDomain.EventZeroTrustDenied,
		Severity:     auditDomain.SeverityHigh,
		Action:       "SecretRead",
		UserID:       "user|1",
		IPAddress:    "10.0.0.1",
		ResourceType: "secret",
		ResourceID:   "app/db=prod",
		Outcome:      auditDomain.OutcomeDeny,
		Reason:       `a\b`,
		Extensions:   map[string]string{"zeta": "1", "alpha": "2"},
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	line := FormatCEF(event)

	assert.Equal(t,
		`CEF:0|IVF|VaultSecurity|1.0|ZeroTrustDenied|SecretRead|8|`+
			`suid=user\|1 src=10.0.0.1 cs1=secret cs1Label=ResourceType cs2=app/db\=prod cs2Label=ResourceId `+
			`outcome=deny reason=a\\b rt=2026-01-02T03:04:05Z alpha=2 zeta=1`,
		line,
	)
}

func TestFormatCEF_LineBreaksEscaped(t *testing.T) {
	event := auditDomain.SecurityEvent{
		EventType: auditDomain.EventZeroTrustDenied,
		Severity:  auditDomain.SeverityMedium,
		Action:    "SecretRead",
		Reason:    "Geo-fence violation: country=VN\r\nCEF:0|IVF|VaultSecurity|1.0|Forged|x|0|",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	line := FormatCEF(event)

	assert.NotContains(t, line, "\n")
	assert.NotContains(t, line, "\r")
	assert.Contains(t, line, `country\=VN\r\nCEF:0\|IVF`)
}

func TestPublisher_Publish(t *testing.T) {
	t.Run("Success_AllSinks", func(t *testing.T) {
		var (
			mu       sync.Mutex
			received []auditDomain.SecurityEvent
		)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ev auditDomain.SecurityEvent
			_ = json.NewDecoder(r.Body).Decode(&ev)
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		var cef bytes.Buffer
		store := &failingStore{}
		p := NewPublisher(testLogger(), store, PublisherConfig{WebhookURL: server.URL, CEFWriter: &cef})

		p.Publish(context.Background(), auditDomain.SecurityEvent{
			EventType: auditDomain.EventBreakGlassUsed,
			Severity:  auditDomain.SeverityCritical,
			Action:    "SecretDelete",
		})
		require.NoError(t, p.Close())

		assert.Equal(t, 1, store.calls)
		assert.Contains(t, cef.String(), "|BreakGlassUsed|SecretDelete|10|")
		require.Len(t, received, 1)
		assert.Equal(t, auditDomain.EventBreakGlassUsed, received[0].EventType)
		assert.NotEmpty(t, received[0].ID)
	})

	t.Run("Success_WebhookFailureSwallowed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		server.Close()

		p := NewPublisher(testLogger(), nil, PublisherConfig{
			WebhookURL:     server.URL,
			WebhookTimeout: time.Second,
		})
		assert.NotPanics(t, func() {
			p.Publish(context.Background(), auditDomain.SecurityEvent{EventType: "x"})
		})
		assert.NoError(t, p.Close())
	})
}
