package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

func TestSendGridMailerPostsV3Payload(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		payload map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer := NewSendGridMailer(SendGridConfig{APIKey: "SG.test", FromAddr: "noreply@schoolhub.test", Host: srv.URL})
	err := mailer.Send(context.Background(), dispatcher.Email{
		To:       dispatcher.Recipient{Email: "admin@greenfield.test", Name: "Ada"},
		Subject:  "Subscription expired",
		Body:     "Your Standard plan expired.",
		Severity: service.SeverityCritical,
	})
	require.NoError(t, err)
	require.Equal(t, endpoint, gotPath)
	require.Equal(t, "Bearer SG.test", gotAuth)

	personalizations, ok := payload["personalizations"].([]any)
	require.True(t, ok)
	require.Len(t, personalizations, 1)
	first := personalizations[0].(map[string]any)
	require.Equal(t, "[SchoolHub] URGENT: Subscription expired", first["subject"])
}

func TestSendGridMailerReportsRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	mailer := NewSendGridMailer(SendGridConfig{APIKey: "SG.bad", FromAddr: "noreply@schoolhub.test", Host: srv.URL})
	err := mailer.Send(context.Background(), dispatcher.Email{To: dispatcher.Recipient{Email: "a@b.test"}, Subject: "x", Body: "y"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestLogMailer(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	mailer := NewLogMailer(zap.New(core))

	err := mailer.Send(context.Background(), dispatcher.Email{
		To:       dispatcher.Recipient{Email: "teacher@greenfield.test"},
		Subject:  "Weekly attendance",
		Body:     "Rate 95.00%",
		Severity: service.SeverityInfo,
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("email suppressed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "teacher@greenfield.test", entries[0].ContextMap()["to"])
}
