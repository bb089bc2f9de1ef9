package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue is the surface shared by the Redis and in-process implementations.
type Queue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}, opts ...EnqueueOption) (string, error)
	RegisterJobs(jobs []Job)
	Start() error
	Stop(ctx context.Context) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	QueueSize  int           // buffer size of the in-process queue
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // time delay between retries
}

// Message represents a message in the queue
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// EnqueueOption customises a single message.
type EnqueueOption func(*Message)

// WithMessageID pins the message ID instead of generating one.
func WithMessageID(id string) EnqueueOption {
	return func(m *Message) {
		m.ID = id
	}
}

// NewMessageID returns a fresh random message ID.
func NewMessageID() string {
	return uuid.NewString()
}

func newMessage(msgType string, payload interface{}, opts []EnqueueOption) Message {
	msg := Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&msg)
	}
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	return msg
}

type messageKey struct{}

type messageInfo struct {
	id       string
	attempts int
}

func withMessage(ctx context.Context, msg Message) context.Context {
	return context.WithValue(ctx, messageKey{}, messageInfo{id: msg.ID, attempts: msg.Attempts})
}

// MessageID returns the ID of the message being handled, or "" outside a handler.
func MessageID(ctx context.Context) string {
	info, _ := ctx.Value(messageKey{}).(messageInfo)
	return info.id
}

// Attempt returns the zero-based delivery attempt of the message being handled.
func Attempt(ctx context.Context) int {
	info, _ := ctx.Value(messageKey{}).(messageInfo)
	return info.attempts
}

func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case map[string]interface{}:
		jsonData, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal map to json: %w", err)
		}
		if err := json.Unmarshal(jsonData, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal json to struct: %w", err)
		}
		return &result, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
