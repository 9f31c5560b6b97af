package transfer

import (
	"errors"
	"fmt"

	"queue2blob/internal/event"
)

var (
	ErrMalformedMessage = errors.New("malformed message body")
	ErrIndexMismatch    = errors.New("object creation event has no records")
	ErrCopyFailed       = errors.New("copy failed")
	ErrCopyTimeout      = errors.New("timed out waiting for copy to complete")
	ErrDeleteFailed     = errors.New("could not delete messages from queue")
)

// Request represents a single object copy
type Request struct {
	Name      string // destination object name
	SourceURL string
	Bucket    string
	Region    string
}

// NewRequest builds the copy request for an event. host is the S3 endpoint host the
// source URL is built on; the key is used as received in the notification.
func NewRequest(host string, evt event.ObjectCreated) Request {
	return Request{
		Name:      evt.Key,
		SourceURL: "https://" + host + "/" + evt.Bucket + "/" + evt.Key,
		Bucket:    evt.Bucket,
		Region:    evt.Region,
	}
}

// Outcome is the terminal classification of a copy
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config contains engine configuration
type Config struct {
	Container   string
	S3Region    string
	MaxMessages int
}

// CycleResult summarises one poll cycle
type CycleResult struct {
	ID          string
	Batches     int
	Received    int
	Transferred int
	Discarded   int
	Skipped     int
	Retained    int
	Err         error
}

// OK reports whether the cycle finished without errors
func (r CycleResult) OK() bool {
	return r.Err == nil
}
