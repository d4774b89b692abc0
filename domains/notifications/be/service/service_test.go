package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dedup"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/outbox"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/repo"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

type fixture struct {
	repo    *repo.MemoryRepository
	outbox  *outbox.MemoryOutbox
	deduper *dedup.MemoryDeduper
	sink    service.Sink
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		repo:    repo.NewMemoryRepository(),
		outbox:  outbox.NewMemoryOutbox(),
		deduper: dedup.NewMemoryDeduper(time.Hour),
	}
	f.sink = service.New(f.repo, f.outbox, f.deduper, zap.NewNop(),
		service.WithClock(func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }))
	return f
}

func validMessage() service.Message {
	return service.Message{
		UserID:   uuid.New(),
		Title:    "Subscription expiring",
		Body:     "Your Standard plan expires in 5 days.",
		Severity: service.SeverityWarning,
	}
}

func TestSendPersistsAndPublishes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	msg := validMessage()

	id, err := f.sink.Send(context.Background(), msg)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	stored := f.repo.ForUser(msg.UserID)
	require.Len(t, stored, 1)
	require.Equal(t, id, stored[0].ID)
	require.Equal(t, msg.Title, stored[0].Title)
	require.Equal(t, service.SeverityWarning, stored[0].Severity)
	require.Nil(t, stored[0].DeliveredAt)

	require.Equal(t, []service.Intent{{NotificationID: id, UserID: msg.UserID}}, f.outbox.Published())
}

func TestSendValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*service.Message)
		field  string
	}{
		{name: "missing user", mutate: func(m *service.Message) { m.UserID = uuid.Nil }, field: "userId"},
		{name: "blank title", mutate: func(m *service.Message) { m.Title = "   " }, field: "title"},
		{name: "title too long", mutate: func(m *service.Message) { m.Title = strings.Repeat("a", 201) }, field: "title"},
		{name: "body too long", mutate: func(m *service.Message) { m.Body = strings.Repeat("b", 4001) }, field: "body"},
		{name: "unknown severity", mutate: func(m *service.Message) { m.Severity = "LOUD" }, field: "severity"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			msg := validMessage()
			tt.mutate(&msg)

			_, err := f.sink.Send(context.Background(), msg)
			var verr *service.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tt.field)
			require.Empty(t, f.repo.All())
			require.Empty(t, f.outbox.Published())
		})
	}
}

func TestSendSurvivesOutboxFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.outbox.PublishErr = errors.New("redis down")

	id, err := f.sink.Send(context.Background(), validMessage())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	require.Len(t, f.repo.All(), 1)
}

func TestSendOnceDeduplicates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	msg := validMessage()
	key := "subscription-expiring:abc:2026-03-02:" + msg.UserID.String()

	sent, err := f.sink.SendOnce(context.Background(), key, msg)
	require.NoError(t, err)
	require.True(t, sent)

	sent, err = f.sink.SendOnce(context.Background(), key, msg)
	require.NoError(t, err)
	require.False(t, sent)

	require.Len(t, f.repo.ForUser(msg.UserID), 1)
}

func TestSendOnceFallsBackWhenDeduperFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.deduper.ClaimErr = errors.New("redis timeout")

	sent, err := f.sink.SendOnce(context.Background(), "payment-due:p:2026-03-05:u", validMessage())
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, f.repo.All(), 1)
}

func TestSendOnceReleasesKeyOnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.repo.CreateErr = errors.New("db unavailable")
	key := "issue-assigned:i:u"

	sent, err := f.sink.SendOnce(context.Background(), key, validMessage())
	require.Error(t, err)
	require.False(t, sent)
	require.False(t, f.deduper.Claimed(key))
}

func TestSendOnceRequiresKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.sink.SendOnce(context.Background(), " ", validMessage())
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
}
