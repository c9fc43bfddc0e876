package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types/events"

	"wazmeow/internal/domain"
	"wazmeow/internal/storage"
)

func TestManager_CreateReturnsActiveSession(t *testing.T) {
	h := newHarness(t)
	h.connector.pair("s1")
	m := h.manager(retryOpts)
	ctx := context.Background()

	first, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)
	second, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, h.connector.opens("s1"))
}

func TestManager_ConcurrentCreateOpensOnce(t *testing.T) {
	h := newHarness(t)
	h.connector.pair("s1")
	m := h.manager(retryOpts)

	const n = 8
	got := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Create(context.Background(), "s1", SessionOptions{})
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got[1:] {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, 1, h.connector.opens("s1"))
}

func TestManager_CreateReplacesInactiveSession(t *testing.T) {
	h := newHarness(t)
	h.connector.pair("s1")
	m := h.manager(SessionOptions{MaxRetries: 0, Reconnect: Bool(false)})
	ctx := context.Background()

	first, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)
	h.connector.last("s1").emit(&events.Disconnected{})
	require.Equal(t, domain.StatusDisconnected, first.Status())

	second, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, h.connector.opens("s1"))

	got, err := m.Get("s1")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestManager_CreateMergesOverride(t *testing.T) {
	h := newHarness(t)
	m := h.manager(retryOpts)

	s, err := m.Create(context.Background(), "s1", SessionOptions{MaxRetries: 7, Reconnect: Bool(false)})
	require.NoError(t, err)

	opts := s.Options()
	assert.Equal(t, 7, opts.MaxRetries)
	assert.Equal(t, retryOpts.RetryBaseDelay, opts.RetryBaseDelay)
	assert.False(t, opts.reconnectEnabled())
}

func TestManager_CreateRejectsInvalidID(t *testing.T) {
	h := newHarness(t)
	m := h.manager(retryOpts)

	_, err := m.Create(context.Background(), "bad id!", SessionOptions{})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, m.List())
}

func TestManager_GetUnknown(t *testing.T) {
	h := newHarness(t)
	m := h.manager(retryOpts)

	_, err := m.Get("missing")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
}

func TestManager_DestroyAndLogout(t *testing.T) {
	h := newHarness(t)
	h.connector.pair("s1")
	h.connector.pair("s2")
	m := h.manager(retryOpts)
	ctx := context.Background()

	_, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)
	_, err = m.Create(ctx, "s2", SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Destroy(ctx, "s1"))
	require.NoError(t, m.Logout(ctx, "s2"))
	require.NoError(t, m.Destroy(ctx, "unknown"))
	require.NoError(t, m.Logout(ctx, "unknown"))

	assert.Empty(t, m.List())
	assert.True(t, h.connector.HasCredentials("s1"))
	assert.False(t, h.connector.HasCredentials("s2"))
	assert.True(t, h.connector.last("s1").isClosed())
}

func TestManager_StartByIDsIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	h.connector.openErr["s2"] = errors.New("corrupt credential store")
	m := h.manager(retryOpts)

	err := m.StartByIDs(context.Background(), []domain.SessionID{"s1", "s2", "s3"}, SessionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s2")

	assert.Equal(t, 1, h.connector.opens("s1"))
	assert.Equal(t, 1, h.connector.opens("s3"))

	infos := m.List()
	require.Len(t, infos, 3)
	assert.Equal(t, domain.StatusConnecting, infos[0].Status)
	assert.Equal(t, domain.StatusError, infos[1].Status)
	assert.Equal(t, domain.StatusConnecting, infos[2].Status)
}

func TestManager_RestartAllPicksUpBaseOptions(t *testing.T) {
	h := newHarness(t)
	h.connector.pair("s1")
	h.connector.pair("s2")
	m := h.manager(retryOpts)
	ctx := context.Background()

	old1, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)
	_, err = m.Create(ctx, "s2", SessionOptions{MaxRetries: 9})
	require.NoError(t, err)

	updated := retryOpts
	updated.MaxRetries = 5
	m.SetBaseOptions(updated)
	require.NoError(t, m.RestartAll(ctx))

	new1, err := m.Get("s1")
	require.NoError(t, err)
	new2, err := m.Get("s2")
	require.NoError(t, err)

	assert.NotSame(t, old1, new1)
	assert.Equal(t, 5, new1.Options().MaxRetries)
	assert.Equal(t, 9, new2.Options().MaxRetries)
	assert.Equal(t, 2, h.connector.opens("s1"))
	assert.Equal(t, 2, h.connector.opens("s2"))
	assert.Equal(t, domain.StatusDisconnected, old1.Status())
}

func TestManager_ShutdownAll(t *testing.T) {
	h := newHarness(t)
	h.connector.pair("s1")
	m := h.manager(retryOpts)
	ctx := context.Background()

	s1, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)
	h.connector.last("s1").emit(&events.Disconnected{})
	s2, err := m.Create(ctx, "s2", SessionOptions{})
	require.NoError(t, err)

	require.NoError(t, m.ShutdownAll(ctx))

	assert.Empty(t, m.List())
	assert.Equal(t, domain.StatusDisconnected, s1.Status())
	assert.Equal(t, domain.StatusDisconnected, s2.Status())
	assert.Equal(t, 0, h.sched.pending())
}

func TestManager_ResumeStartsAutoStartSessions(t *testing.T) {
	h := newHarness(t)
	h.connector.pair("s1")
	ctx := context.Background()
	require.NoError(t, h.store.SaveSession(ctx, &storage.SessionRecord{ID: "s1", AutoStart: true}))
	require.NoError(t, h.store.SaveSession(ctx, &storage.SessionRecord{ID: "s2", AutoStart: false}))
	require.NoError(t, h.store.SaveSession(ctx, &storage.SessionRecord{ID: "bad id", AutoStart: true}))

	m := NewMultiSessionManager(h.connector, h.store, h.global, ManagerOptions{
		Base:           retryOpts,
		Scheduler:      h.sched.schedule,
		StartupStagger: time.Millisecond,
	})
	t.Cleanup(func() { _ = m.ShutdownAll(context.Background()) })

	started, err := m.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, h.connector.opens("s1"))
	assert.Equal(t, 0, h.connector.opens("s2"))
}

func TestManager_GlobalBusSeesEverySession(t *testing.T) {
	h := newHarness(t)
	m := h.manager(retryOpts)
	global := record(m.Events())
	ctx := context.Background()

	_, err := m.Create(ctx, "s1", SessionOptions{})
	require.NoError(t, err)
	_, err = m.Create(ctx, "s2", SessionOptions{})
	require.NoError(t, err)

	ids := map[domain.SessionID]int{}
	for _, e := range global.all() {
		if e.Kind == domain.EventSessionStarted {
			ids[e.SessionID]++
		}
	}
	assert.Equal(t, map[domain.SessionID]int{"s1": 1, "s2": 1}, ids)
}
