package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConnection is returned when the queue cannot be reached or the credentials are rejected
	ErrConnection = errors.New("queue unavailable")
	// ErrPartialFailure is returned when some entries of a delete batch were not removed
	ErrPartialFailure = errors.New("partial batch delete failure")
)

// Queue defines the source queue operations
type Queue interface {
	// Receive fetches up to max messages without waiting for new ones
	Receive(ctx context.Context, max int) ([]Message, error)

	// DeleteBatch acknowledges processed messages
	DeleteBatch(ctx context.Context, entries []DeleteEntry) error
}

// Message is a received queue message
type Message struct {
	ID            string
	ReceiptHandle string
	Body          string
}

// Entry returns the delete entry for the message
func (m Message) Entry() DeleteEntry {
	return DeleteEntry{ID: m.ID, ReceiptHandle: m.ReceiptHandle}
}

// DeleteEntry identifies a message to delete
type DeleteEntry struct {
	ID            string
	ReceiptHandle string
}

// FailedEntry is a delete entry rejected by the queue
type FailedEntry struct {
	ID      string
	Code    string
	Message string
}

// PartialFailureError lists the entries that were not deleted
type PartialFailureError struct {
	Failed []FailedEntry
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = fmt.Sprintf("%s (%s)", f.ID, f.Code)
	}
	return fmt.Sprintf("%s: %d entries: %s", ErrPartialFailure, len(e.Failed), strings.Join(ids, ", "))
}

func (e *PartialFailureError) Unwrap() error {
	return ErrPartialFailure
}
