package memstore

import "fmt"

// ErrorCode tags structured store errors.
type ErrorCode string

// CodeLoadMessages marks a topic load failure.
const CodeLoadMessages ErrorCode = "LOAD_MESSAGES_ERROR"

// StoreError is a structured error carrying the failing topic as context.
type StoreError struct {
	Code    ErrorCode
	TopicID string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: topic %s: %v", e.Code, e.TopicID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RecordedError is one entry in the bounded error logs.
type RecordedError struct {
	Time      int64     `json:"time"`
	TopicID   string    `json:"topic_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Code      ErrorCode `json:"code,omitempty"`
	Message   string    `json:"message"`
}
