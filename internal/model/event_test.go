package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("message_sent", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"message_sent","groupJid":"123@g.us","messageId":"wamid.1","timestamp":1700000000}`))
		require.NoError(t, err)
		sr, ok := ev.(SendResultEvent)
		require.True(t, ok)
		assert.True(t, sr.Sent)
		assert.Equal(t, "123@g.us", sr.GroupJID)
		assert.Equal(t, "wamid.1", sr.MessageID)
		require.NotNil(t, sr.Timestamp)
	})

	t.Run("message_failed carries the error", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"message_failed","groupJid":"123@g.us","error":"not in group"}`))
		require.NoError(t, err)
		sr := ev.(SendResultEvent)
		assert.False(t, sr.Sent)
		assert.Equal(t, "not in group", sr.Error)
		assert.Equal(t, EventMessageFailed, sr.Kind())
	})

	t.Run("send result without groupJid is rejected", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"event":"message_sent","messageId":"wamid.1"}`))
		assert.Error(t, err)
	})

	t.Run("delivered receipt normalizes the phone", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"delivered","messageId":"wamid.1","readerPhone":"4915112345678@s.whatsapp.net"}`))
		require.NoError(t, err)
		r := ev.(ReceiptEvent)
		assert.Equal(t, ReceiptKindDelivered, r.Receipt)
		assert.Equal(t, "4915112345678", r.Phone)
	})

	t.Run("read receipt", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"read","messageId":"wamid.1","readerPhone":"+49 151 12345678"}`))
		require.NoError(t, err)
		r := ev.(ReceiptEvent)
		assert.Equal(t, ReceiptKindRead, r.Receipt)
		assert.Equal(t, "+4915112345678", r.Phone)
	})

	t.Run("receipt without correlation is rejected", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"event":"delivered","readerPhone":"+111"}`))
		assert.Error(t, err)

		_, err = ParseEvent([]byte(`{"event":"read","messageId":"wamid.1"}`))
		assert.Error(t, err)
	})

	t.Run("reaction add requires an emoji", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"reaction_add","messageId":"wamid.1","reactorPhone":"+111","emoji":"🔥"}`))
		require.NoError(t, err)
		r := ev.(ReactionEvent)
		assert.True(t, r.Add)
		assert.Equal(t, "🔥", r.Emoji)

		_, err = ParseEvent([]byte(`{"event":"reaction_add","messageId":"wamid.1","reactorPhone":"+111"}`))
		assert.Error(t, err)
	})

	t.Run("reaction remove needs no emoji", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"reaction_remove","messageId":"wamid.1","reactorPhone":"+111"}`))
		require.NoError(t, err)
		r := ev.(ReactionEvent)
		assert.False(t, r.Add)
		assert.Equal(t, EventReactionRemove, r.Kind())
	})

	t.Run("message_error", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"event":"message_error","messageId":"wamid.1","errorCode":"403","errorMessage":"forbidden"}`))
		require.NoError(t, err)
		me := ev.(MessageErrorEvent)
		assert.Equal(t, "403", me.ErrorCode)
		assert.Equal(t, "forbidden", me.ErrorMessage)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{"event":"presence_update","messageId":"wamid.1"}`))
		assert.Error(t, err)
	})

	t.Run("invalid JSON is rejected", func(t *testing.T) {
		_, err := ParseEvent([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"4915112345678@s.whatsapp.net": "4915112345678",
		"+49 151 12345678":             "+4915112345678",
		"  +1 (555) 000-1234 ":         "+15550001234",
		"111222@lid":                   "111222",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), "input %q", in)
	}
}

func TestDeriveFinalStatus(t *testing.T) {
	assert.Equal(t, CampaignStatusCompleted, DeriveFinalStatus(3, 0))
	assert.Equal(t, CampaignStatusCompleted, DeriveFinalStatus(0, 0))
	assert.Equal(t, CampaignStatusPartialFailure, DeriveFinalStatus(2, 1))
	assert.Equal(t, CampaignStatusFailed, DeriveFinalStatus(0, 4))
}
