package messages

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/pkg/kv"
	"chatdesk/pkg/models"
	"chatdesk/pkg/store/keys"
)

const adminID = "admin-1"

// fakeClock returns the queued instants in order, repeating the last one.
type fakeClock struct {
	mu    sync.Mutex
	times []int64
}

func (c *fakeClock) at(ms ...int64) { c.mu.Lock(); c.times = ms; c.mu.Unlock() }

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return time.UnixMilli(ms)
}

func newLog(t *testing.T, legacy bool) (*Log, *fakeClock, kv.Store) {
	t.Helper()
	store, err := kv.OpenPebbleMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	clock := &fakeClock{times: []int64{1}}
	l := New(store, Options{
		AdminID:          adminID,
		MaxMessageBytes:  64,
		LegacyVisibility: legacy,
		Clock:            clock.now,
	})
	return l, clock, store
}

func TestAppendUserMessage(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLog(t, false)
	clock.at(100)

	m, err := l.AppendUserMessage(ctx, "u1", "Alice", "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "u1", m.UserID)
	assert.Equal(t, "Alice", m.UserName)
	assert.Equal(t, "hi", m.Message)
	assert.False(t, m.IsAdmin)
	assert.True(t, strings.HasPrefix(m.ID, "msg_u1_"))
	assert.Equal(t, uint64(1), m.Seq)
}

func TestAppendAdminMessage(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLog(t, false)

	m, err := l.AppendAdminMessage(ctx, "u9", "hello")
	require.NoError(t, err)
	assert.Equal(t, "u9", m.UserID)
	assert.Equal(t, "Admin", m.UserName)
	assert.True(t, m.IsAdmin)
	assert.True(t, strings.HasPrefix(m.ID, "msg_admin_u9_"))
}

func TestAppendValidation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLog(t, false)

	_, err := l.AppendUserMessage(ctx, "u1", "Alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = l.AppendUserMessage(ctx, "u1", "Alice", strings.Repeat("x", 65))
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	_, err = l.AppendUserMessage(ctx, "bad:id", "Mallory", "hi")
	assert.ErrorIs(t, err, keys.ErrInvalidIdentity)

	_, err = l.AppendAdminMessage(ctx, "", "hi")
	assert.ErrorIs(t, err, keys.ErrInvalidIdentity)

	_, err = l.AppendAdminMessage(ctx, adminID, "note to self")
	assert.ErrorIs(t, err, ErrAdminConversation)

	_, err = l.AppendUserMessage(ctx, adminID, "Admin", "hi")
	assert.ErrorIs(t, err, ErrAdminConversation)
}

func TestSameMillisecondSendsBothSurvive(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLog(t, false)
	clock.at(100, 100)

	a, err := l.AppendUserMessage(ctx, "u1", "Alice", "first")
	require.NoError(t, err)
	b, err := l.AppendUserMessage(ctx, "u1", "Alice", "second")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	msgs, err := l.MessagesForConversation(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Message)
	assert.Equal(t, "second", msgs[1].Message)
}

func TestOrderingIsNonDecreasing(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLog(t, false)
	// a skewed clock produces out-of-order timestamps
	clock.at(300, 100, 200, 200, 50)

	_, _ = l.AppendUserMessage(ctx, "u1", "Alice", "a")
	_, _ = l.AppendAdminMessage(ctx, "u1", "b")
	_, _ = l.AppendUserMessage(ctx, "u1", "Alice", "c")
	_, _ = l.AppendAdminMessage(ctx, "u1", "d")
	_, _ = l.AppendUserMessage(ctx, "u1", "Alice", "e")

	msgs, err := l.MessagesForConversation(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Before(msgs[i-1]), "index %d out of order", i)
	}
	assert.Equal(t, []string{"e", "b", "c", "d", "a"}, texts(msgs))
}

func TestConversationsArePartitioned(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLog(t, false)
	clock.at(10, 20, 30, 40, 50)

	_, _ = l.AppendUserMessage(ctx, "A", "Ann", "from A")
	_, _ = l.AppendUserMessage(ctx, "B", "Bob", "from B")
	_, _ = l.AppendAdminMessage(ctx, "A", "to A")
	_, _ = l.AppendAdminMessage(ctx, "B", "to B")
	// prefix of another identity must not leak
	_, _ = l.AppendUserMessage(ctx, "AB", "Abe", "from AB")

	for _, id := range []string{"A", "B", "AB"} {
		msgs, err := l.MessagesForConversation(ctx, id)
		require.NoError(t, err)
		require.NotEmpty(t, msgs)
		for _, m := range msgs {
			assert.Equal(t, id, m.UserID)
		}
	}
}

func TestVisibilityFixedVersusLegacy(t *testing.T) {
	ctx := context.Background()

	seed := func(l *Log) {
		_, _ = l.AppendUserMessage(ctx, "u1", "Alice", "from u1")
		_, _ = l.AppendAdminMessage(ctx, "u1", "to u1")
		_, _ = l.AppendAdminMessage(ctx, "u2", "to u2")
	}

	fixed, _, _ := newLog(t, false)
	seed(fixed)
	msgs, err := fixed.MessagesVisibleToUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"from u1", "to u1"}, texts(msgs))

	legacy, _, _ := newLog(t, true)
	seed(legacy)
	msgs, err = legacy.MessagesVisibleToUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"from u1", "to u1", "to u2"}, texts(msgs))
}

func TestUnknownTargetCreatesConversation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLog(t, false)

	empty, err := l.MessagesForConversation(ctx, "u9")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	_, err = l.AppendAdminMessage(ctx, "u9", "welcome")
	require.NoError(t, err)
	msgs, err := l.MessagesForConversation(ctx, "u9")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRepeatedReadsAreIdentical(t *testing.T) {
	ctx := context.Background()
	l, clock, _ := newLog(t, false)
	clock.at(5, 5, 6)
	_, _ = l.AppendUserMessage(ctx, "u1", "Alice", "x")
	_, _ = l.AppendAdminMessage(ctx, "u1", "y")
	_, _ = l.AppendUserMessage(ctx, "u1", "Alice", "z")

	first, err := l.MessagesForConversation(ctx, "u1")
	require.NoError(t, err)
	second, err := l.MessagesForConversation(ctx, "u1")
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
}

func TestAllMessagesSkipsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	l, _, store := newLog(t, false)
	_, err := l.AppendUserMessage(ctx, "u1", "Alice", "ok")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "msg_garbage", []byte("{not json")))

	all, err := l.AllMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConcurrentAppendsGetDistinctSeq(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLog(t, false)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.AppendUserMessage(ctx, "u1", "Alice", "hi"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := l.MessagesForConversation(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, n)
	seen := map[uint64]bool{}
	for _, m := range msgs {
		assert.False(t, seen[m.Seq])
		seen[m.Seq] = true
	}
}

func TestStoreFailureIsWrapped(t *testing.T) {
	ctx := context.Background()
	l := New(failingStore{}, Options{AdminID: adminID})
	_, err := l.AppendUserMessage(ctx, "u1", "Alice", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errDisk))
}

var errDisk = errors.New("disk on fire")

type failingStore struct{ kv.Store }

func (failingStore) Update(context.Context, func(kv.Tx) error) error { return errDisk }

func texts(ms []models.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Message)
	}
	return out
}
