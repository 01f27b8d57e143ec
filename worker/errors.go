package worker

import "fmt"

// ConnectionError means a mailbox session could not be opened (network or
// auth). The supervisor retries it with backoff; it never crashes the process.
type ConnectionError struct {
	Account string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Account, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FetchError means a single message failed to download or parse. The message
// is skipped and logged; the rest of the batch continues.
type FetchError struct {
	Ref uint32
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch of message %d failed: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClassificationError defaults to fail-safe handling: the message is treated
// as a reply so we stop follow-ups rather than keep mailing someone who
// already answered.
type ClassificationError struct {
	MessageID string
	Err       error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification of message %q failed: %v", e.MessageID, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// SendError means an auto-response could not be dispatched. Non-fatal: the
// inbound message is still marked seen so it is not reprocessed forever.
type SendError struct {
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
