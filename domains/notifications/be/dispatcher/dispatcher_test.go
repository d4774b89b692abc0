package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dedup"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/dispatcher"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/outbox"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/repo"
	"github.com/zenGate-Global/schoolhub/domains/notifications/be/service"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []dispatcher.Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, email dispatcher.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestProcessBatchDeliversAndAcks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repo.NewMemoryRepository()
	box := outbox.NewMemoryOutbox()
	mailer := &recordingMailer{}
	sink := service.New(store, box, dedup.NewMemoryDeduper(0), zap.NewNop())

	userID := uuid.New()
	store.SetRecipient(userID, dispatcher.Recipient{Email: "admin@greenfield.test", Name: "Ada"})
	id, err := sink.Send(ctx, service.Message{UserID: userID, Title: "Hello", Body: "World", Severity: service.SeverityInfo})
	require.NoError(t, err)

	d := dispatcher.New(box, store, mailer, dispatcher.Config{}, zap.NewNop())
	batch, err := box.Read(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	d.ProcessBatch(ctx, batch)

	require.Equal(t, 1, mailer.count())
	require.Equal(t, "admin@greenfield.test", mailer.sent[0].To.Email)
	require.Equal(t, 0, box.Pending())

	n, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, n.DeliveredAt)

	// A replayed intent for a delivered row is acked without a second email.
	d.ProcessBatch(ctx, []dispatcher.Delivery{{ID: "replay-0", Intent: service.Intent{NotificationID: id, UserID: userID}}})
	require.Equal(t, 1, mailer.count())
}

func TestProcessBatchFailureLeavesRowUndelivered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repo.NewMemoryRepository()
	box := outbox.NewMemoryOutbox()
	mailer := &recordingMailer{err: errors.New("smtp down")}
	sink := service.New(store, box, dedup.NewMemoryDeduper(0), zap.NewNop())

	userID := uuid.New()
	store.SetRecipient(userID, dispatcher.Recipient{Email: "a@b.test"})
	id, err := sink.Send(ctx, service.Message{UserID: userID, Title: "t", Body: "b", Severity: service.SeverityInfo})
	require.NoError(t, err)

	d := dispatcher.New(box, store, mailer, dispatcher.Config{}, zap.NewNop())
	batch, err := box.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, d.ProcessBatch(ctx, batch))

	require.Equal(t, 0, box.Pending())
	n, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Nil(t, n.DeliveredAt)
}

func TestProcessBatchAcksMissingNotification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	box := outbox.NewMemoryOutbox()
	require.NoError(t, box.Publish(ctx, service.Intent{NotificationID: uuid.New(), UserID: uuid.New()}))

	d := dispatcher.New(box, repo.NewMemoryRepository(), &recordingMailer{}, dispatcher.Config{}, zap.NewNop())
	batch, err := box.Read(ctx)
	require.NoError(t, err)
	d.ProcessBatch(ctx, batch)

	require.Equal(t, 0, box.Pending())
}

func TestRecoverRepublishesStaleRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repo.NewMemoryRepository()
	box := outbox.NewMemoryOutbox()

	old := time.Now().UTC().Add(-time.Hour)
	stale, err := store.Create(ctx, service.Notification{ID: uuid.New(), UserID: uuid.New(), Title: "t", Body: "b", Severity: service.SeverityInfo, CreatedAt: old})
	require.NoError(t, err)
	_, err = store.Create(ctx, service.Notification{ID: uuid.New(), UserID: uuid.New(), Title: "t", Body: "b", Severity: service.SeverityInfo, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	d := dispatcher.New(box, store, &recordingMailer{}, dispatcher.Config{RecoveryInterval: 10 * time.Minute}, zap.NewNop())
	n, err := d.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []service.Intent{{NotificationID: stale.ID, UserID: stale.UserID}}, box.Published())

	// The claimed row waits a full interval before it is republished again.
	n, err = d.Recover(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecoverReachesGoodRowsBehindFailingOnes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repo.NewMemoryRepository()
	box := outbox.NewMemoryOutbox()
	mailer := &recordingMailer{}
	clock := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	mk := func(userID uuid.UUID, createdAt time.Time) service.Notification {
		n, err := store.Create(ctx, service.Notification{ID: uuid.New(), UserID: userID, Title: "t", Body: "b", Severity: service.SeverityInfo, CreatedAt: createdAt})
		require.NoError(t, err)
		return n
	}
	// No recipient is registered for these users, so every delivery fails.
	mk(uuid.New(), clock.Add(-3*time.Hour))
	mk(uuid.New(), clock.Add(-3*time.Hour+time.Minute))
	goodUser := uuid.New()
	store.SetRecipient(goodUser, dispatcher.Recipient{Email: "bursar@greenfield.test"})
	good := mk(goodUser, clock.Add(-2*time.Hour))

	d := dispatcher.New(box, store, mailer,
		dispatcher.Config{RecoveryInterval: 10 * time.Minute, RecoveryBatch: 2},
		zap.NewNop(),
		dispatcher.WithClock(func() time.Time { return clock }),
	)

	for pass := 0; pass < 3; pass++ {
		_, err := d.Recover(ctx)
		require.NoError(t, err)
		batch, err := box.Read(ctx)
		require.NoError(t, err)
		d.ProcessBatch(ctx, batch)
		clock = clock.Add(time.Minute)
	}

	got, err := store.Get(ctx, good.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	require.Equal(t, 1, mailer.count())
}

func TestFailingRowIsDeadLetteredAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repo.NewMemoryRepository()
	box := outbox.NewMemoryOutbox()
	clock := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	poison, err := store.Create(ctx, service.Notification{ID: uuid.New(), UserID: uuid.New(), Title: "t", Body: "b", Severity: service.SeverityInfo, CreatedAt: clock.Add(-time.Hour)})
	require.NoError(t, err)

	d := dispatcher.New(box, store, &recordingMailer{},
		dispatcher.Config{RecoveryInterval: 10 * time.Minute, MaxAttempts: 2},
		zap.NewNop(),
		dispatcher.WithClock(func() time.Time { return clock }),
	)

	republished := 0
	for pass := 0; pass < 4; pass++ {
		n, err := d.Recover(ctx)
		require.NoError(t, err)
		republished += n
		batch, err := box.Read(ctx)
		require.NoError(t, err)
		d.ProcessBatch(ctx, batch)
		clock = clock.Add(15 * time.Minute)
	}

	require.Equal(t, 2, republished)
	got, err := store.Get(ctx, poison.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.DeadLetteredAt)
	require.Nil(t, got.DeliveredAt)
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := repo.NewMemoryRepository()
	box := outbox.NewMemoryOutbox()
	mailer := &recordingMailer{}
	sink := service.New(store, box, dedup.NewMemoryDeduper(0), zap.NewNop())

	d := dispatcher.New(box, store, mailer, dispatcher.Config{}, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 3; i++ {
		userID := uuid.New()
		store.SetRecipient(userID, dispatcher.Recipient{Email: "u@greenfield.test"})
		_, err := sink.Send(context.Background(), service.Message{UserID: userID, Title: "t", Body: "b", Severity: service.SeverityInfo})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return mailer.count() == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
