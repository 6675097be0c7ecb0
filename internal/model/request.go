package model

import (
	"errors"
	"strings"
)

// RequestStatus is the lifecycle state of a queued question.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusError      RequestStatus = "error"
)

// Terminal reports whether no further processing may happen for the status.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// DefaultRequestType is applied to queue messages that omit request_type.
const DefaultRequestType = "nl2sql_chat"

// Request is the persisted record of one question sent through the queue.
// Timestamps are unix seconds so documents written by other services
// sharing the collection keep their layout.
type Request struct {
	RequestID   string        `json:"request_id" bson:"request_id"`
	Status      RequestStatus `json:"status" bson:"status"`
	RequestType string        `json:"request_type,omitempty" bson:"request_type,omitempty"`
	UserEmail   string        `json:"user_email,omitempty" bson:"user_email,omitempty"`
	AssistantID string        `json:"assistant_id,omitempty" bson:"assistant_id,omitempty"`
	ThreadID    string        `json:"thread_id,omitempty" bson:"thread_id,omitempty"`
	Result      *Result       `json:"result,omitempty" bson:"result,omitempty"`
	CreatedAt   int64         `json:"created_at" bson:"created_at"`
	UpdatedAt   int64         `json:"updated_at" bson:"updated_at"`
}

// ResultStatus is the outcome reported back to the caller.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Result is what the frontend reads once a request reaches a terminal state.
// Response carries the answer on success; Message carries informational or
// error text.
type Result struct {
	Status      ResultStatus `json:"status" bson:"status"`
	Response    string       `json:"response,omitempty" bson:"response,omitempty"`
	Message     string       `json:"message,omitempty" bson:"message,omitempty"`
	Error       string       `json:"error,omitempty" bson:"error,omitempty"`
	AssistantID string       `json:"assistant_id" bson:"assistant_id"`
	ThreadID    string       `json:"thread_id" bson:"thread_id"`
	Context     string       `json:"context,omitempty" bson:"context,omitempty"`
	Usage       *Usage       `json:"usage,omitempty" bson:"usage,omitempty"`
}

// RequestStatus maps the result outcome onto the request lifecycle.
func (r *Result) RequestStatus() RequestStatus {
	if r != nil && r.Status == ResultSuccess {
		return StatusCompleted
	}
	return StatusError
}

// Usage counts LLM tokens spent answering a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" bson:"completion_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
}

// QueueMessage is the JSON body of a Service Bus message.
type QueueMessage struct {
	RequestID   string `json:"request_id"`
	Question    string `json:"question"`
	AssistantID string `json:"assistant_id,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
	UserEmail   string `json:"user_email,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	ReportName  string `json:"report_name,omitempty"`
}

// ErrIncompleteMessage is returned by Validate when a message lacks the
// fields needed to process it.
var ErrIncompleteMessage = errors.New("message missing request_id or question")

// Validate applies defaults and checks required fields.
func (m *QueueMessage) Validate() error {
	m.Question = strings.TrimSpace(m.Question)
	if m.RequestType == "" {
		m.RequestType = DefaultRequestType
	}
	if m.RequestID == "" || m.Question == "" {
		return ErrIncompleteMessage
	}
	return nil
}
