package keys

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageKeys(t *testing.T) {
	k := GenUserMessageKey("u1", 100, 7)
	assert.Equal(t, "msg_u1_100_00000000000000000007", k)
	assert.True(t, strings.HasPrefix(k, MessagePrefix))

	a := GenAdminMessageKey("u1", 100, 8)
	assert.Equal(t, "msg_admin_u1_100_00000000000000000008", a)

	seq, err := ParseSeqSuffix(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), seq)

	_, err = ParseSeqSuffix("msg_")
	assert.Error(t, err)
	// keys written without a sequence end in the timestamp
	_, err = ParseSeqSuffix("msg_u1_1700000000000")
	assert.Error(t, err)
}

func TestSameMillisecondKeysDiffer(t *testing.T) {
	assert.NotEqual(t, GenUserMessageKey("u1", 100, 1), GenUserMessageKey("u1", 100, 2))
}

func TestConvIndexOrdersBySeq(t *testing.T) {
	k9 := GenConvIndexKey("u1", 9)
	k10 := GenConvIndexKey("u1", 10)
	assert.Less(t, k9, k10)
	assert.True(t, strings.HasPrefix(k9, GenConvIndexPrefix("u1")))
	assert.False(t, strings.HasPrefix(GenConvIndexKey("u10", 1), GenConvIndexPrefix("u1")))
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("msh"), PrefixEnd([]byte("msg")))
	assert.Equal(t, []byte("b"), PrefixEnd([]byte{'a', 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}

func TestValidateIdentity(t *testing.T) {
	for _, ok := range []string{"u1", "user.name", "a_b-c", strings.Repeat("x", 128)} {
		assert.NoError(t, ValidateIdentity(ok), ok)
	}
	for _, bad := range []string{"", "a:b", "has space", "ü", strings.Repeat("x", 129)} {
		err := ValidateIdentity(bad)
		assert.True(t, errors.Is(err, ErrInvalidIdentity), bad)
	}
}
