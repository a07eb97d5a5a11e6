package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	if IsTimeout(nil) {
		t.Fatalf("IsTimeout(nil) = true, want false")
	}
	if !IsTimeout(fmt.Errorf("get: %w", context.DeadlineExceeded)) {
		t.Fatalf("wrapped deadline should be a timeout")
	}
	if !IsTimeout(timeoutErr{}) {
		t.Fatalf("net.Error with Timeout() should be a timeout")
	}
	if IsTimeout(errors.New("connection refused")) {
		t.Fatalf("plain error should not be a timeout")
	}
}
