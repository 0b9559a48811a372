package syncx

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Operation is the kind of mutation carried by a queue entry or a POST /sync request
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Status marks whether a record has local effects the remote has not acknowledged
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrMalformedPayload = errors.New("malformed payload")
)

// ParseOperation validates an operation name received from storage or the wire
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpInsert, OpUpdate, OpDelete:
		return op, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

// Todo is the wire representation of a record
type Todo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    Status `json:"status,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

// Mutation is the body of POST /sync.
// Payload is kept raw so the snapshot taken at enqueue time is sent unchanged.
type Mutation struct {
	Operation Operation       `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
}

// SyncAck is the success response of POST /sync
type SyncAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DecodePayload parses a mutation payload into a Todo.
// Every operation requires an id; INSERT and UPDATE carry the full record.
func DecodePayload(raw json.RawMessage) (Todo, error) {
	if len(raw) == 0 {
		return Todo{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return Todo{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if item == nil {
		return Todo{}, fmt.Errorf("%w: null", ErrMalformedPayload)
	}

	todo, err := ExtractTodo(item)
	if err != nil {
		return Todo{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return todo, nil
}

// Validate checks that the mutation can be applied by the remote
func (m Mutation) Validate() (Todo, error) {
	if _, err := ParseOperation(string(m.Operation)); err != nil {
		return Todo{}, err
	}
	return DecodePayload(m.Payload)
}
