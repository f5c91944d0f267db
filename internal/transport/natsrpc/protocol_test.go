package natsrpc

import (
	"fmt"
	"testing"

	"github.com/casualjim/tidings/pubsub"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestReplyJSON(t *testing.T) {
	t.Run("carries the type marker and omits empty fields", func(t *testing.T) {
		data, err := json.Marshal(reply{OK: true, ID: 3})
		require.NoError(t, err)
		assert.Equal(t, "reply", gjson.GetBytes(data, "type").String())
		assert.True(t, gjson.GetBytes(data, "ok").Bool())
		assert.EqualValues(t, 3, gjson.GetBytes(data, "id").Int())
		assert.False(t, gjson.GetBytes(data, "topics").Exists())
		assert.False(t, gjson.GetBytes(data, "error").Exists())
	})

	t.Run("keeps an empty topic list", func(t *testing.T) {
		data, err := json.Marshal(reply{OK: true, Topics: []pubsub.Topic{}})
		require.NoError(t, err)
		assert.True(t, gjson.GetBytes(data, "topics").IsArray())

		got, err := decodeReply(data)
		require.NoError(t, err)
		assert.NotNil(t, got.Topics)
		assert.Empty(t, got.Topics)
	})

	t.Run("decodes topics", func(t *testing.T) {
		in := reply{OK: true, Topics: []pubsub.Topic{{ID: 1, Name: "Weather", Keywords: []string{"rain"}}}}
		got, err := decodeReply(encodeReply(in))
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})

	t.Run("rejects documents of another type", func(t *testing.T) {
		_, err := decodeReply([]byte(`{"type":"request","ok":true}`))
		require.Error(t, err)
		_, err = decodeReply([]byte(`{"type":"reply"}`))
		require.Error(t, err)
		_, err = decodeReply([]byte(`not json`))
		require.Error(t, err)
	})
}

func TestRejectionCodes(t *testing.T) {
	for code, sentinel := range rejectionCodes {
		t.Run(code, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", sentinel)
			resp := failure(wrapped)
			assert.Equal(t, code, resp.Code)
			assert.False(t, resp.OK)

			got, err := decodeReply(encodeReply(resp))
			require.NoError(t, err)
			assert.ErrorIs(t, got.asError(), sentinel)
		})
	}

	t.Run("other errors keep their message", func(t *testing.T) {
		resp := failure(fmt.Errorf("disk on fire"))
		assert.Empty(t, resp.Code)
		err := resp.asError()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")
		assert.False(t, pubsub.IsRejection(err))
	})

	t.Run("successful replies are not errors", func(t *testing.T) {
		assert.NoError(t, reply{OK: true}.asError())
	})
}

func TestValidateIdentity(t *testing.T) {
	valid := []string{"tidings.agent.abc", "agent", NewIdentity(""), NewIdentity("custom")}
	for _, id := range valid {
		assert.NoError(t, validateIdentity(id), id)
	}
	invalid := []string{"", "has space", "wild.*", "tail.>", ".lead", "trail.", "double..dot"}
	for _, id := range invalid {
		assert.ErrorIs(t, validateIdentity(id), ErrInvalidIdentity, id)
	}
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "tidings.rpc.publish", rpcSubject(DefaultPrefix, opPublish))
	assert.Equal(t, "a.b.notify", notifySubject("a.b"))
	assert.Equal(t, "a.b.advertise", advertiseSubject("a.b"))
	assert.Regexp(t, `^tidings\.agent\.[0-9a-f]{32}$`, NewIdentity(""))
}

func TestSchemas(t *testing.T) {
	schemas := Schemas()
	require.Len(t, schemas, 4)

	event := schemas["event"]
	require.NotNil(t, event)
	published, ok := event.Properties.Get("published_at")
	require.True(t, ok)
	assert.Equal(t, "string", published.Type)
	assert.Equal(t, "date-time", published.Format)

	replySchema := schemas["reply"]
	typ, ok := replySchema.Properties.Get("type")
	require.True(t, ok)
	assert.Equal(t, "reply", typ.Const)
	assert.Contains(t, replySchema.Required, "type")

	data, err := json.Marshal(schemas["request"])
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "properties.subscriber_id").Exists())
}
