package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/gridone/paperlens/internal/logger"
)

// The shared limiter paces real vendor calls; tests would crawl behind it.
func TestMain(m *testing.M) {
	turnLimiter.SetLimit(rate.Inf)
	os.Exit(m.Run())
}

func testPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}
}

func TestWithRetry(t *testing.T) {
	log := logger.NewNoOpLogger()
	transientErr := errors.New("connection reset by peer")

	t.Run("succeeds first attempt", func(t *testing.T) {
		calls := 0
		got, err := WithRetry(context.Background(), testPolicy(), log, IsTransient, func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("WithRetry failed: %v", err)
		}
		if got != "ok" || calls != 1 {
			t.Errorf("got %q after %d calls, want ok after 1", got, calls)
		}
	})

	t.Run("fails twice then succeeds", func(t *testing.T) {
		calls := 0
		start := time.Now()
		got, err := WithRetry(context.Background(), testPolicy(), log, IsTransient, func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", transientErr
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("WithRetry failed: %v", err)
		}
		if got != "ok" {
			t.Errorf("got %q, want ok", got)
		}
		if calls != 3 {
			t.Errorf("made %d attempts, want exactly 3", calls)
		}
		// Backoff is 1x then 2x the base delay before attempts 2 and 3.
		if elapsed := time.Since(start); elapsed < 3*time.Millisecond {
			t.Errorf("elapsed %v, want at least 3ms of backoff", elapsed)
		}
	})

	t.Run("always transient exhausts attempts and keeps original error", func(t *testing.T) {
		calls := 0
		_, err := WithRetry(context.Background(), testPolicy(), log, IsTransient, func(ctx context.Context) (string, error) {
			calls++
			return "", transientErr
		})
		if calls != 3 {
			t.Errorf("made %d attempts, want 3", calls)
		}
		if !errors.Is(err, transientErr) {
			t.Errorf("error = %v, want the original transient error", err)
		}
	})

	t.Run("non-transient fails immediately", func(t *testing.T) {
		fatal := errors.New("invalid request payload")
		calls := 0
		_, err := WithRetry(context.Background(), testPolicy(), log, IsTransient, func(ctx context.Context) (string, error) {
			calls++
			return "", fatal
		})
		if calls != 1 {
			t.Errorf("made %d attempts, want 1", calls)
		}
		if !errors.Is(err, fatal) {
			t.Errorf("error = %v, want the fatal error", err)
		}
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := WithRetry(ctx, RetryPolicy{Attempts: 3, BaseDelay: time.Minute}, log, IsTransient, func(ctx context.Context) (string, error) {
			calls++
			cancel()
			return "", transientErr
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Errorf("made %d attempts, want 1", calls)
		}
	})
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o deadline reached" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancellation", context.Canceled, false},
		{"net error", net.Error(timeoutNetError{}), true},
		{"wrapped net error", fmt.Errorf("sending turn: %w", timeoutNetError{}), true},
		{"connection reset", syscall.ECONNRESET, true},
		{"reset by message", errors.New("read tcp: connection reset by peer"), true},
		{"tls failure", errors.New("TLS handshake error"), true},
		{"rate limited", errors.New("server returned 429 Too Many Requests"), true},
		{"server error", errors.New("unexpected status 503"), true},
		{"malformed request", errors.New("invalid request: image too large"), false},
		{"auth failure", errors.New("401 unauthorized"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
