// Package conversations derives per-user conversation summaries from the
// message log, either from the transactional summary table or by a full
// scan-and-reduce.
package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"chatdesk/pkg/kv"
	"chatdesk/pkg/logger"
	"chatdesk/pkg/models"
	"chatdesk/pkg/store/keys"
	"chatdesk/pkg/telemetry"
)

// PlaceholderName is shown for conversations no user message has named yet.
const PlaceholderName = "User"

const (
	SourceTable = "table"
	SourceScan  = "scan"
)

// Reduce folds one message into the existing summary for its conversation.
// It reports whether the summary changed. An entry is created
// unconditionally and replaced only by a strictly newer message; admin
// messages keep the stored display name.
func Reduce(existing *models.ConversationSummary, m models.Message) (models.ConversationSummary, bool) {
	if existing != nil && m.Timestamp <= existing.LastMessageTime {
		return *existing, false
	}
	name := m.UserName
	if m.IsAdmin {
		name = PlaceholderName
		if existing != nil && existing.UserName != "" {
			name = existing.UserName
		}
	}
	return models.ConversationSummary{
		UserID:          m.UserID,
		UserName:        name,
		LastMessage:     m.Message,
		LastMessageTime: m.Timestamp,
		UnreadCount:     0,
	}, true
}

// BuildUserSummaries reduces the whole log in append order, skipping the
// excluded identity and messages without a conversation.
func BuildUserSummaries(msgs []models.Message, excludeIdentity string) []models.ConversationSummary {
	ordered := make([]models.Message, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	byUser := make(map[string]*models.ConversationSummary)
	for _, m := range ordered {
		if m.UserID == "" || m.UserID == excludeIdentity {
			continue
		}
		next, changed := Reduce(byUser[m.UserID], m)
		if changed {
			s := next
			byUser[m.UserID] = &s
		}
	}

	out := make([]models.ConversationSummary, 0, len(byUser))
	for _, s := range byUser {
		out = append(out, *s)
	}
	Sort(out)
	return out
}

// Sort orders summaries by most recent activity, then user id.
func Sort(s []models.ConversationSummary) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].LastMessageTime != s[j].LastMessageTime {
			return s[i].LastMessageTime > s[j].LastMessageTime
		}
		return s[i].UserID < s[j].UserID
	})
}

// ApplyTx updates the summary row for m inside an append transaction.
func ApplyTx(tx kv.Tx, m models.Message, excludeIdentity string) error {
	if m.UserID == "" || m.UserID == excludeIdentity {
		return nil
	}
	key := keys.GenSummaryKey(m.UserID)
	var cur models.ConversationSummary
	var existing *models.ConversationSummary
	switch err := kv.TxGetJSON(tx, key, &cur); {
	case err == nil:
		existing = &cur
	case errors.Is(err, kv.ErrNotFound):
	default:
		return fmt.Errorf("read summary %s: %w", m.UserID, err)
	}
	next, changed := Reduce(existing, m)
	if !changed {
		return nil
	}
	return kv.TxSetJSON(tx, key, next)
}

// Aggregator serves admin summaries from the configured source.
type Aggregator struct {
	store   kv.Store
	adminID string
	mode    string
}

func NewAggregator(store kv.Store, adminID, mode string) *Aggregator {
	if mode != SourceScan {
		mode = SourceTable
	}
	return &Aggregator{store: store, adminID: adminID, mode: mode}
}

// Summaries returns one summary per conversation, most recent first.
func (a *Aggregator) Summaries(ctx context.Context) ([]models.ConversationSummary, error) {
	tr := telemetry.Track("conversations.summaries." + a.mode)
	defer tr.Finish()

	if a.mode == SourceScan {
		return a.scan(ctx)
	}
	entries, err := a.store.ScanPrefix(ctx, keys.SummaryPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan summaries: %w", err)
	}
	tr.Mark("scan")
	out := make([]models.ConversationSummary, 0, len(entries))
	for _, e := range entries {
		var s models.ConversationSummary
		if err := json.Unmarshal(e.Value, &s); err != nil {
			logger.Warn("summary_decode_failed", "key", e.Key, "error", err)
			continue
		}
		if s.UserID == a.adminID {
			continue
		}
		out = append(out, s)
	}
	Sort(out)
	return out, nil
}

func (a *Aggregator) scan(ctx context.Context) ([]models.ConversationSummary, error) {
	entries, err := a.store.ScanPrefix(ctx, keys.MessagePrefix)
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return BuildUserSummaries(DecodeMessages(entries), a.adminID), nil
}

// Rebuild recomputes the summary table from the full log and replaces it in
// one transaction, so no append can slip between the scan and the rewrite.
// It returns the number of rows written.
func (a *Aggregator) Rebuild(ctx context.Context) (int, error) {
	tr := telemetry.Track("conversations.rebuild")
	defer tr.Finish()

	var written int
	err := a.store.Update(ctx, func(tx kv.Tx) error {
		entries, err := tx.ScanPrefix(keys.MessagePrefix)
		if err != nil {
			return err
		}
		summaries := BuildUserSummaries(DecodeMessages(entries), a.adminID)
		tr.Mark("reduce")

		stale, err := tx.ScanPrefix(keys.SummaryPrefix)
		if err != nil {
			return err
		}
		for _, e := range stale {
			if err := tx.Delete(e.Key); err != nil {
				return err
			}
		}
		for _, s := range summaries {
			if err := kv.TxSetJSON(tx, keys.GenSummaryKey(s.UserID), s); err != nil {
				return err
			}
		}
		written = len(summaries)
		return nil
	})
	if err != nil {
		telemetry.SummaryRebuild("error")
		return 0, fmt.Errorf("rebuild summaries: %w", err)
	}
	telemetry.SummaryRebuild("ok")
	logger.Info("summaries_rebuilt", "rows", written)
	return written, nil
}

// DecodeMessages skips undecodable records instead of failing the batch.
// Records stored without a seq field take it from the key suffix.
func DecodeMessages(entries []kv.Entry) []models.Message {
	out := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		var m models.Message
		if err := json.Unmarshal(e.Value, &m); err != nil {
			logger.Warn("message_decode_failed", "key", e.Key, "error", err)
			continue
		}
		if m.Seq == 0 {
			if seq, err := keys.ParseSeqSuffix(e.Key); err == nil {
				m.Seq = seq
			}
		}
		if m.ID == "" {
			m.ID = e.Key
		}
		out = append(out, m)
	}
	return out
}
