package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Conversation stages, carried by ConversationError so callers can tell
// which turn was in flight when a run failed.
const (
	StageInstructions = "instructions"
	StagePage         = "page"
	StageFinal        = "final"
)

// ConversationError is the fatal failure of a conversation turn, after
// retries were exhausted or on a non-transient model error. Page is the
// one-based page in flight, 0 when no page turn was active.
type ConversationError struct {
	Stage    string
	Page     int
	Attempts int
	Err      error
}

func (e *ConversationError) Error() string {
	if e.Stage == StagePage {
		return fmt.Sprintf("conversation failed sending page %d after %d attempts: %v", e.Page, e.Attempts, e.Err)
	}
	return fmt.Sprintf("conversation failed at %s turn after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *ConversationError) Unwrap() error { return e.Err }

// transientMarkers are error-string fragments that identify transport-level
// trouble when no typed error is available from the SDK.
var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"tls handshake",
	"no such host",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"429",
	"500",
	"502",
	"503",
	"504",
}

// IsTransient reports whether an error is worth retrying: network, TLS, and
// timeout failures are, malformed requests and other model-side rejections
// are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
