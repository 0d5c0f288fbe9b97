package conversations_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/pkg/kv"
	"chatdesk/pkg/models"
	"chatdesk/pkg/store/conversations"
	"chatdesk/pkg/store/keys"
	"chatdesk/pkg/store/messages"
)

const adminID = "admin-1"

type stepClock struct{ ms []int64 }

func (c *stepClock) now() time.Time {
	v := c.ms[0]
	if len(c.ms) > 1 {
		c.ms = c.ms[1:]
	}
	return time.UnixMilli(v)
}

func setup(t *testing.T, ms ...int64) (kv.Store, *messages.Log) {
	t.Helper()
	store, err := kv.OpenPebbleMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	clock := &stepClock{ms: ms}
	if len(ms) == 0 {
		clock.ms = []int64{1}
	}
	return store, messages.New(store, messages.Options{AdminID: adminID, Clock: clock.now})
}

func TestReduce(t *testing.T) {
	user := models.Message{UserID: "u1", UserName: "Alice", Message: "hello", Timestamp: 100}
	s, changed := conversations.Reduce(nil, user)
	assert.True(t, changed)
	assert.Equal(t, models.ConversationSummary{UserID: "u1", UserName: "Alice", LastMessage: "hello", LastMessageTime: 100}, s)

	admin := models.Message{UserID: "u1", UserName: "Admin", Message: "hi back", Timestamp: 200, IsAdmin: true}
	s2, changed := conversations.Reduce(&s, admin)
	assert.True(t, changed)
	assert.Equal(t, "Alice", s2.UserName)
	assert.Equal(t, "hi back", s2.LastMessage)

	// equal timestamp keeps the first writer
	tie := models.Message{UserID: "u1", UserName: "Alice", Message: "same ms", Timestamp: 200}
	s3, changed := conversations.Reduce(&s2, tie)
	assert.False(t, changed)
	assert.Equal(t, s2, s3)

	fresh, _ := conversations.Reduce(nil, models.Message{UserID: "u9", UserName: "Admin", Message: "x", Timestamp: 5, IsAdmin: true})
	assert.Equal(t, conversations.PlaceholderName, fresh.UserName)
}

func TestBuildUserSummaries(t *testing.T) {
	msgs := []models.Message{
		{UserID: "u2", UserName: "Bob", Message: "late", Timestamp: 300, Seq: 3},
		{UserID: "u1", UserName: "Alice", Message: "hello", Timestamp: 100, Seq: 1},
		{UserID: "u1", UserName: "Admin", Message: "reply", Timestamp: 200, Seq: 2, IsAdmin: true},
		{UserID: adminID, UserName: "Admin", Message: "self", Timestamp: 400, Seq: 4},
		{UserID: "", Message: "orphan", Timestamp: 500, Seq: 5},
		{UserID: "u3", UserName: "Cy", Message: "tie", Timestamp: 300, Seq: 6},
	}
	got := conversations.BuildUserSummaries(msgs, adminID)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"u2", "u3", "u1"}, ids(got))
	assert.Equal(t, "Alice", got[2].UserName)
	assert.Equal(t, "reply", got[2].LastMessage)
	for _, s := range got {
		assert.Zero(t, s.UnreadCount)
	}
}

func TestBuildUserSummariesEmpty(t *testing.T) {
	got := conversations.BuildUserSummaries(nil, adminID)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUserThenAdminReply(t *testing.T) {
	ctx := context.Background()
	store, log := setup(t, 100, 200)

	_, err := log.AppendUserMessage(ctx, "u1", "Alice", "hello")
	require.NoError(t, err)
	_, err = log.AppendAdminMessage(ctx, "u1", "hi back")
	require.NoError(t, err)

	for _, mode := range []string{conversations.SourceTable, conversations.SourceScan} {
		agg := conversations.NewAggregator(store, adminID, mode)
		got, err := agg.Summaries(ctx)
		require.NoError(t, err, mode)
		require.Len(t, got, 1, mode)
		assert.Equal(t, models.ConversationSummary{
			UserID:          "u1",
			UserName:        "Alice",
			LastMessage:     "hi back",
			LastMessageTime: 200,
		}, got[0], mode)
	}
}

func TestAdminFirstMessageUsesPlaceholder(t *testing.T) {
	ctx := context.Background()
	store, log := setup(t, 50)

	_, err := log.AppendAdminMessage(ctx, "u9", "welcome")
	require.NoError(t, err)

	got, err := conversations.NewAggregator(store, adminID, conversations.SourceTable).Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u9", got[0].UserID)
	assert.Equal(t, "User", got[0].UserName)
}

func TestTableMatchesScan(t *testing.T) {
	ctx := context.Background()
	// duplicate and out-of-order timestamps exercise the tie rules
	store, log := setup(t, 10, 30, 30, 20, 40, 40, 5)

	_, _ = log.AppendUserMessage(ctx, "u1", "Alice", "a")
	_, _ = log.AppendUserMessage(ctx, "u2", "Bob", "b")
	_, _ = log.AppendAdminMessage(ctx, "u1", "c")
	_, _ = log.AppendUserMessage(ctx, "u1", "Alice", "d")
	_, _ = log.AppendAdminMessage(ctx, "u3", "e")
	_, _ = log.AppendUserMessage(ctx, "u3", "Cy", "f")
	_, _ = log.AppendUserMessage(ctx, "u2", "Bob", "g")

	table, err := conversations.NewAggregator(store, adminID, conversations.SourceTable).Summaries(ctx)
	require.NoError(t, err)
	scan, err := conversations.NewAggregator(store, adminID, conversations.SourceScan).Summaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, scan, table)

	// u3: admin "e" at 40 wins the tie against "f" at 40
	var u3 models.ConversationSummary
	for _, s := range table {
		if s.UserID == "u3" {
			u3 = s
		}
	}
	assert.Equal(t, "e", u3.LastMessage)
	assert.Equal(t, conversations.PlaceholderName, u3.UserName)
}

func TestSummariesAreUniqueAndSorted(t *testing.T) {
	ctx := context.Background()
	store, log := setup(t, 1, 2, 3, 4, 5, 6)

	for _, id := range []string{"a", "b", "c", "a", "b", "a"} {
		_, err := log.AppendUserMessage(ctx, id, id, "m")
		require.NoError(t, err)
	}
	got, err := conversations.NewAggregator(store, adminID, "").Summaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].LastMessageTime, got[i].LastMessageTime)
	}
}

func TestRebuildRepairsTable(t *testing.T) {
	ctx := context.Background()
	store, log := setup(t, 100, 200, 300)

	_, _ = log.AppendUserMessage(ctx, "u1", "Alice", "hello")
	_, _ = log.AppendAdminMessage(ctx, "u1", "reply")
	_, _ = log.AppendUserMessage(ctx, "u2", "Bob", "hey")

	agg := conversations.NewAggregator(store, adminID, conversations.SourceTable)
	want, err := agg.Summaries(ctx)
	require.NoError(t, err)

	// lose one row, corrupt another, and leave a stray
	require.NoError(t, store.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Delete(keys.GenSummaryKey("u1")); err != nil {
			return err
		}
		if err := tx.Set(keys.GenSummaryKey("u2"), []byte("{broken")); err != nil {
			return err
		}
		return kv.TxSetJSON(tx, keys.GenSummaryKey("ghost"), models.ConversationSummary{UserID: "ghost", LastMessageTime: 999})
	}))

	n, err := agg.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := agg.Summaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRebuildEmptyStore(t *testing.T) {
	ctx := context.Background()
	store, _ := setup(t)
	n, err := conversations.NewAggregator(store, adminID, conversations.SourceTable).Rebuild(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func ids(s []models.ConversationSummary) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		out = append(out, v.UserID)
	}
	return out
}

func TestDecodeMessagesBackfillsLegacyRecords(t *testing.T) {
	entries := []kv.Entry{
		{Key: "msg_u1_100", Value: []byte(`{"userId":"u1","userName":"Alice","message":"old","timestamp":100,"isAdmin":false}`)},
		{Key: keys.GenUserMessageKey("u1", 200, 7), Value: []byte(`{"id":"x","userId":"u1","message":"new","timestamp":200}`)},
		{Key: "msg_broken", Value: []byte(`{`)},
	}
	out := conversations.DecodeMessages(entries)
	require.Len(t, out, 2)
	assert.Equal(t, "msg_u1_100", out[0].ID)
	assert.Zero(t, out[0].Seq)
	assert.Equal(t, "x", out[1].ID)
	assert.Equal(t, uint64(7), out[1].Seq)
}

func TestUnindexedRecordsAreReadable(t *testing.T) {
	ctx := context.Background()
	store, log := setup(t, 300)

	require.NoError(t, store.Set(ctx, "msg_u1_100", []byte(`{"userId":"u1","userName":"Alice","message":"old","timestamp":100,"isAdmin":false}`)))
	require.NoError(t, store.Set(ctx, "msg_admin_u1_150", []byte(`{"userId":"u1","userName":"Admin","message":"old reply","timestamp":150,"isAdmin":true}`)))
	// shares the msg_u1_ prefix but belongs to another conversation
	require.NoError(t, store.Set(ctx, "msg_u1_x_120", []byte(`{"userId":"u1_x","userName":"Bob","message":"other","timestamp":120,"isAdmin":false}`)))
	_, err := log.AppendUserMessage(ctx, "u1", "Alice", "new")
	require.NoError(t, err)

	want := []string{"old", "old reply", "new"}
	conv, err := log.MessagesForConversation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, messageTexts(conv))

	visible, err := log.MessagesVisibleToUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, messageTexts(visible))

	other, err := log.MessagesForConversation(ctx, "u1_x")
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, messageTexts(other))

	// every conversation the dashboard lists opens non-empty
	n, err := conversations.NewAggregator(store, adminID, conversations.SourceTable).Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	users, err := conversations.NewAggregator(store, adminID, conversations.SourceScan).Summaries(ctx)
	require.NoError(t, err)
	for _, u := range users {
		msgs, err := log.MessagesForConversation(ctx, u.UserID)
		require.NoError(t, err)
		assert.NotEmpty(t, msgs, u.UserID)
		assert.Equal(t, u.LastMessage, msgs[len(msgs)-1].Message, u.UserID)
	}
}

func messageTexts(ms []models.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Message)
	}
	return out
}
