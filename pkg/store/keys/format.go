package keys

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MessagePrefix is the flat log prefix every message key starts with.
	MessagePrefix = "msg_"

	UserMessageKey  = "msg_%s_%d_%020d"       // userId, timestamp, seq
	AdminMessageKey = "msg_admin_%s_%d_%020d" // targetUserId, timestamp, seq

	ConvIndexPrefix = "conv:%s:"      // userId
	ConvIndexKey    = "conv:%s:%020d" // userId, seq

	SummaryPrefix = "sum:"
	SummaryKey    = "sum:%s" // userId

	SeqKey = "meta:seq"

	seqWidth = 20
)

func GenUserMessageKey(userID string, ts int64, seq uint64) string {
	return fmt.Sprintf(UserMessageKey, userID, ts, seq)
}

func GenAdminMessageKey(targetUserID string, ts int64, seq uint64) string {
	return fmt.Sprintf(AdminMessageKey, targetUserID, ts, seq)
}

// GenUserMessagePrefix bounds the user messages of userID. Other ids that
// extend userID past an underscore share the prefix.
func GenUserMessagePrefix(userID string) string {
	return MessagePrefix + userID + "_"
}

func GenAdminMessagePrefix(targetUserID string) string {
	return MessagePrefix + "admin_" + targetUserID + "_"
}

func GenConvIndexPrefix(userID string) string {
	return fmt.Sprintf(ConvIndexPrefix, userID)
}

func GenConvIndexKey(userID string, seq uint64) string {
	return fmt.Sprintf(ConvIndexKey, userID, seq)
}

func GenSummaryKey(userID string) string {
	return fmt.Sprintf(SummaryKey, userID)
}

// ParseSeqSuffix extracts the trailing zero-padded sequence from a message key.
func ParseSeqSuffix(key string) (uint64, error) {
	i := strings.LastIndexByte(key, '_')
	if i < 0 || len(key)-i-1 != seqWidth {
		return 0, fmt.Errorf("no sequence suffix in key %q", key)
	}
	return strconv.ParseUint(key[i+1:], 10, 64)
}

// PrefixEnd returns the smallest key greater than every key with the given prefix.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
