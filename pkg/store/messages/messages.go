// Package messages is the append-only chat message log.
package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"chatdesk/pkg/kv"
	"chatdesk/pkg/logger"
	"chatdesk/pkg/models"
	"chatdesk/pkg/store/conversations"
	"chatdesk/pkg/store/keys"
	"chatdesk/pkg/telemetry"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrMessageTooLarge   = errors.New("message too large")
	ErrAdminConversation = errors.New("the admin identity cannot own a conversation")
)

const defaultAdminName = "Admin"

// Options configures a Log.
type Options struct {
	AdminID         string
	AdminName       string
	MaxMessageBytes int
	// LegacyVisibility lets users see admin messages addressed to anyone.
	LegacyVisibility bool
	Clock            func() time.Time
}

// Log appends and reads messages. Every append also maintains the
// per-conversation index and the summary table in the same transaction.
type Log struct {
	store kv.Store
	opts  Options
	now   func() time.Time
}

func New(store kv.Store, opts Options) *Log {
	if opts.AdminName == "" {
		opts.AdminName = defaultAdminName
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Log{store: store, opts: opts, now: now}
}

// AppendUserMessage stores a message authored by senderID in its own conversation.
func (l *Log) AppendUserMessage(ctx context.Context, senderID, senderName, text string) (models.Message, error) {
	if err := keys.ValidateIdentity(senderID); err != nil {
		return models.Message{}, err
	}
	if senderID == l.opts.AdminID {
		return models.Message{}, ErrAdminConversation
	}
	body, err := l.checkText(text)
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		UserID:   senderID,
		UserName: senderName,
		Message:  body,
		IsAdmin:  false,
	}
	return l.append(ctx, m, func(ts int64, seq uint64) string {
		return keys.GenUserMessageKey(senderID, ts, seq)
	})
}

// AppendAdminMessage stores an admin message in targetUserID's conversation.
// The target does not need any prior history.
func (l *Log) AppendAdminMessage(ctx context.Context, targetUserID, text string) (models.Message, error) {
	if err := keys.ValidateIdentity(targetUserID); err != nil {
		return models.Message{}, err
	}
	if targetUserID == l.opts.AdminID {
		return models.Message{}, ErrAdminConversation
	}
	body, err := l.checkText(text)
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		UserID:   targetUserID,
		UserName: l.opts.AdminName,
		Message:  body,
		IsAdmin:  true,
	}
	return l.append(ctx, m, func(ts int64, seq uint64) string {
		return keys.GenAdminMessageKey(targetUserID, ts, seq)
	})
}

func (l *Log) checkText(text string) (string, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return "", ErrEmptyMessage
	}
	if l.opts.MaxMessageBytes > 0 && len(body) > l.opts.MaxMessageBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, len(body), l.opts.MaxMessageBytes)
	}
	return body, nil
}

func (l *Log) append(ctx context.Context, m models.Message, keyFn func(ts int64, seq uint64) string) (models.Message, error) {
	role := "user"
	if m.IsAdmin {
		role = "admin"
	}
	tr := telemetry.Track("messages.append." + role)
	defer tr.Finish()

	err := l.store.Update(ctx, func(tx kv.Tx) error {
		seq, err := nextSeq(tx)
		if err != nil {
			return err
		}
		// stamped under the writer lock so seq and timestamp agree in order
		m.Timestamp = l.now().UnixMilli()
		m.Seq = seq
		m.ID = keyFn(m.Timestamp, seq)

		if err := kv.TxSetJSON(tx, m.ID, m); err != nil {
			return err
		}
		if err := kv.TxSetJSON(tx, keys.GenConvIndexKey(m.UserID, seq), m.ID); err != nil {
			return err
		}
		if err := conversations.ApplyTx(tx, m, l.opts.AdminID); err != nil {
			return err
		}
		return tx.Set(keys.SeqKey, []byte(strconv.FormatUint(seq, 10)))
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	telemetry.MessageAppended(role)
	logger.Debug("message_appended", "id", m.ID, "user_id", m.UserID, "is_admin", m.IsAdmin, "seq", m.Seq)
	return m, nil
}

func nextSeq(tx kv.Tx) (uint64, error) {
	raw, err := tx.Get(keys.SeqKey)
	if errors.Is(err, kv.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	cur, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt sequence %q: %w", raw, err)
	}
	return cur + 1, nil
}

// MessagesForConversation returns userID's conversation, oldest first.
func (l *Log) MessagesForConversation(ctx context.Context, userID string) ([]models.Message, error) {
	if err := keys.ValidateIdentity(userID); err != nil {
		return nil, err
	}
	tr := telemetry.Track("messages.conversation")
	defer tr.Finish()

	idx, err := l.store.ScanPrefix(ctx, keys.GenConvIndexPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("scan conversation index: %w", err)
	}
	tr.Mark("index")

	out := make([]models.Message, 0, len(idx))
	for _, e := range idx {
		var msgKey string
		if err := json.Unmarshal(e.Value, &msgKey); err != nil {
			logger.Warn("conversation_index_corrupt", "key", e.Key, "error", err)
			continue
		}
		var m models.Message
		if err := kv.GetJSON(ctx, l.store, msgKey, &m); err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				logger.Warn("conversation_index_dangling", "key", e.Key, "message_key", msgKey)
				continue
			}
			return nil, fmt.Errorf("load message %s: %w", msgKey, err)
		}
		out = append(out, m)
	}
	tr.Mark("resolve")

	legacy, err := l.unindexed(ctx, userID)
	if err != nil {
		return nil, err
	}
	out = append(out, legacy...)
	sortMessages(out)
	return out, nil
}

// unindexed returns userID's records stored without a sequence, which
// predate the conversation index and are only reachable by key prefix.
func (l *Log) unindexed(ctx context.Context, userID string) ([]models.Message, error) {
	seen := make(map[string]struct{})
	var out []models.Message
	for _, prefix := range []string{keys.GenUserMessagePrefix(userID), keys.GenAdminMessagePrefix(userID)} {
		entries, err := l.store.ScanPrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		for _, m := range conversations.DecodeMessages(entries) {
			if m.Seq != 0 || m.UserID != userID {
				continue
			}
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

// MessagesVisibleToUser returns what callerID may read: its own
// conversation, or with legacy visibility also every admin message.
func (l *Log) MessagesVisibleToUser(ctx context.Context, callerID string) ([]models.Message, error) {
	if !l.opts.LegacyVisibility {
		return l.MessagesForConversation(ctx, callerID)
	}
	all, err := l.AllMessages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0)
	for _, m := range all {
		if m.UserID == callerID || m.IsAdmin {
			out = append(out, m)
		}
	}
	return out, nil
}

// AllMessages scans the whole log, oldest first.
func (l *Log) AllMessages(ctx context.Context) ([]models.Message, error) {
	tr := telemetry.Track("messages.scan_all")
	defer tr.Finish()

	entries, err := l.store.ScanPrefix(ctx, keys.MessagePrefix)
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	out := conversations.DecodeMessages(entries)
	sortMessages(out)
	return out, nil
}

func sortMessages(ms []models.Message) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Before(ms[j]) })
}
