package errors

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "net gone wrong" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestCategorize(t *testing.T) {
	req := require.New(t)

	tests := []struct {
		name     string
		err      error
		expected FailureCategory
	}{
		{"Nil error", nil, CategoryUnknown},
		{"Deadline exceeded", context.DeadlineExceeded, CategoryTimeout},
		{"Wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryTimeout},
		{"Status 401", &StatusError{Status: 401}, CategoryAuth},
		{"Status 403", &StatusError{Status: 403}, CategoryAuth},
		{"Status 429", &StatusError{Status: 429, Body: "slow down"}, CategoryRateLimit},
		{"Status 500", &StatusError{Status: 500}, CategoryNetwork},
		{"Status 503", &StatusError{Status: 503}, CategoryNetwork},
		{"Status 400", &StatusError{Status: 400}, CategoryUnknown},
		{"Wrapped status error", fmt.Errorf("generation: %w", &StatusError{Status: 429}), CategoryRateLimit},
		{"Net timeout", fakeNetError{timeout: true}, CategoryTimeout},
		{"Net failure", fakeNetError{}, CategoryNetwork},
		{"URL error", &url.Error{Op: "Post", URL: "https://example.invalid", Err: fmt.Errorf("refused")}, CategoryNetwork},
		{"Anything else", fmt.Errorf("model said something weird"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.Equal(tt.expected, Categorize(tt.err), tt.name)
		})
	}
}

var _ net.Error = fakeNetError{}
