package natsrpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/tidings/pkg/uuidx"
	"github.com/casualjim/tidings/pubsub"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "tidings"

const (
	opConnect            = "connect"
	opReconnect          = "reconnect"
	opUnbind             = "unbind"
	opGetSubscriber      = "subscriber"
	opAddTopic           = "topic.add"
	opTopics             = "topics"
	opAddSubscriber      = "subscribe"
	opRemoveSubscriber   = "unsubscribe"
	opRemoveAll          = "unsubscribe.all"
	opSubscribeKeyword   = "keyword.subscribe"
	opUnsubscribeKeyword = "keyword.unsubscribe"
	opPublish            = "publish"
)

var operations = []string{
	opConnect, opReconnect, opUnbind, opGetSubscriber,
	opAddTopic, opTopics,
	opAddSubscriber, opRemoveSubscriber, opRemoveAll,
	opSubscribeKeyword, opUnsubscribeKeyword,
	opPublish,
}

func rpcSubject(prefix, op string) string {
	return prefix + ".rpc." + op
}

func notifySubject(identity string) string {
	return identity + ".notify"
}

func advertiseSubject(identity string) string {
	return identity + ".advertise"
}

// NewIdentity returns a fresh agent identity under prefix.
func NewIdentity(prefix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ".agent." + uuidx.NewToken()
}

// ErrInvalidIdentity is returned when an identity cannot be used as a NATS
// subject prefix.
var ErrInvalidIdentity = errors.New("natsrpc: identity must be a literal subject")

func validateIdentity(identity string) error {
	if identity == "" || strings.ContainsAny(identity, " \t\r\n*>") ||
		strings.HasPrefix(identity, ".") || strings.HasSuffix(identity, ".") || strings.Contains(identity, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	return nil
}

type request struct {
	SubscriberID int           `json:"subscriber_id,omitempty"`
	Identity     string        `json:"identity,omitempty"`
	Topic        *pubsub.Topic `json:"topic,omitempty"`
	Event        *pubsub.Event `json:"event,omitempty"`
	Keyword      string        `json:"keyword,omitempty"`
}

var replyJSON = []byte(`{"type":"reply"}`)

type reply struct {
	OK       bool           `json:"ok"`
	ID       int            `json:"id,omitempty"`
	Found    bool           `json:"found,omitempty"`
	Identity string         `json:"identity,omitempty"`
	Topics   []pubsub.Topic `json:"topics,omitempty"`
	Code     string         `json:"code,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for reply
func (r reply) MarshalJSON() ([]byte, error) {
	result := replyJSON

	var err error
	result, err = sjson.SetBytes(result, "ok", r.OK)
	if err != nil {
		return nil, err
	}

	if r.ID != 0 {
		result, err = sjson.SetBytes(result, "id", r.ID)
		if err != nil {
			return nil, err
		}
	}

	if r.Found {
		result, err = sjson.SetBytes(result, "found", true)
		if err != nil {
			return nil, err
		}
	}

	if r.Identity != "" {
		result, err = sjson.SetBytes(result, "identity", r.Identity)
		if err != nil {
			return nil, err
		}
	}

	if r.Topics != nil {
		topicBytes, err := json.Marshal(r.Topics)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal topics: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "topics", topicBytes)
		if err != nil {
			return nil, err
		}
	}

	if r.Code != "" {
		result, err = sjson.SetBytes(result, "code", r.Code)
		if err != nil {
			return nil, err
		}
	}

	if r.Error != "" {
		result, err = sjson.SetBytes(result, "error", r.Error)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for reply
func (r *reply) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "reply" {
		return fmt.Errorf("missing or invalid type, expected 'reply'")
	}

	ok := gjson.GetBytes(data, "ok")
	if !ok.Exists() {
		return fmt.Errorf("missing required field 'ok'")
	}
	r.OK = ok.Bool()
	r.ID = int(gjson.GetBytes(data, "id").Int())
	r.Found = gjson.GetBytes(data, "found").Bool()
	r.Identity = gjson.GetBytes(data, "identity").String()
	r.Code = gjson.GetBytes(data, "code").String()
	r.Error = gjson.GetBytes(data, "error").String()

	if topics := gjson.GetBytes(data, "topics"); topics.Exists() {
		if err := json.Unmarshal([]byte(topics.Raw), &r.Topics); err != nil {
			return fmt.Errorf("invalid topics: %w", err)
		}
	}
	return nil
}

var rejectionCodes = map[string]error{
	"topic_exists":      pubsub.ErrTopicExists,
	"topic_not_found":   pubsub.ErrTopicNotFound,
	"already_published": pubsub.ErrAlreadyPublished,
	"invalid_topic":     pubsub.ErrInvalidTopic,
	"invalid_keyword":   pubsub.ErrInvalidKeyword,
	"nil_subscriber":    pubsub.ErrNilSubscriber,
	"invalid_identity":  ErrInvalidIdentity,
}

// failure builds the reply for err.
func failure(err error) reply {
	for code, sentinel := range rejectionCodes {
		if errors.Is(err, sentinel) {
			return reply{Code: code, Error: err.Error()}
		}
	}
	return reply{Error: err.Error()}
}

// asError turns a failed reply back into an error, using the sentinel for
// known rejection codes.
func (r reply) asError() error {
	if r.OK {
		return nil
	}
	if sentinel, ok := rejectionCodes[r.Code]; ok {
		return sentinel
	}
	if r.Error == "" {
		return errors.New("natsrpc: request failed")
	}
	return fmt.Errorf("natsrpc: %s", r.Error)
}

func encodeReply(r reply) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// reply fields are plain values; this only fails on a broken encoder
		return []byte(`{"type":"reply","ok":false,"error":"failed to encode reply"}`)
	}
	return data
}

func decodeReply(data []byte) (reply, error) {
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return reply{}, err
	}
	return r, nil
}
