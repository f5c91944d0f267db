package pubsub

import "errors"

// Validation rejections. They are always paired with a zero ID or false result
// and indicate the caller can retry with corrected input.
var (
	ErrTopicExists      = errors.New("pubsub: topic already exists")
	ErrTopicNotFound    = errors.New("pubsub: topic not found")
	ErrAlreadyPublished = errors.New("pubsub: event has already been published")
	ErrInvalidTopic     = errors.New("pubsub: topic name must not be empty")
	ErrInvalidKeyword   = errors.New("pubsub: keyword must not be empty")
	ErrNilSubscriber    = errors.New("pubsub: subscriber is required")
)

var rejections = []error{
	ErrTopicExists,
	ErrTopicNotFound,
	ErrAlreadyPublished,
	ErrInvalidTopic,
	ErrInvalidKeyword,
	ErrNilSubscriber,
}

// IsRejection reports whether err is a validation rejection rather than a
// transport failure. Retrying a rejected call without changing it is pointless.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
