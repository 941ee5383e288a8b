package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "connection failed",
				Reason:  "timeout",
				Hint:    "check network",
				Try:     "ping host",
				Err:     fmt.Errorf("dial tcp: timeout"),
			},
			contains: []string{"connection failed", "Reason: timeout", "Hint: check network", "Try: ping host", "Details: dial tcp: timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_UnwrapKeepsKind(t *testing.T) {
	inner := New(Timeout, "read", fmt.Errorf("i/o timeout"))
	err := WrapNetworkError(inner, "192.168.1.209")

	if !errors.Is(err, inner) {
		t.Error("Unwrap should return the inner error")
	}
	if KindOf(err) != Timeout {
		t.Errorf("KindOf = %v, want timeout", KindOf(err))
	}
}

func TestWrapNetworkError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapNetworkError(nil, "10.0.0.1") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("kinded timeout", func(t *testing.T) {
		err := WrapNetworkError(New(Timeout, "read", nil), "10.0.0.1")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Message, "10.0.0.1") {
			t.Errorf("message should contain address, got %q", ufe.Message)
		}
		if !strings.Contains(ufe.Reason, "timeout") {
			t.Errorf("reason should mention timeout, got %q", ufe.Reason)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		err := WrapNetworkError(fmt.Errorf("connection refused"), "10.0.0.1")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "refused") {
			t.Errorf("reason should mention refused, got %q", ufe.Reason)
		}
	})

	t.Run("generic network error", func(t *testing.T) {
		err := WrapNetworkError(fmt.Errorf("something else"), "10.0.0.1")
		ufe := err.(UserFriendlyError)
		if ufe.Reason != "Network communication failed" {
			t.Errorf("unexpected reason: %q", ufe.Reason)
		}
	})
}

func TestWrapDeviceError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapDeviceError(nil, "reset") != nil {
			t.Error("expected nil")
		}
	})

	t.Run("device error code", func(t *testing.T) {
		err := WrapDeviceError(WithCode(DeviceError, "feedback", 40), "feedback")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Reason, "40") {
			t.Errorf("reason should carry the code, got %q", ufe.Reason)
		}
	})

	t.Run("driver unavailable hint", func(t *testing.T) {
		err := WrapDeviceError(New(DriverUnavailable, "open", nil), "open")
		ufe := err.(UserFriendlyError)
		if !strings.Contains(ufe.Hint, "libusb") {
			t.Errorf("hint should mention libusb, got %q", ufe.Hint)
		}
	})
}

func TestWrapConfigError(t *testing.T) {
	if WrapConfigError(nil, "ljctl.yaml") != nil {
		t.Error("expected nil")
	}

	err := WrapConfigError(fmt.Errorf("invalid yaml"), "ljctl.yaml")
	ufe := err.(UserFriendlyError)
	if !strings.Contains(ufe.Message, "ljctl.yaml") {
		t.Errorf("message should contain config path, got %q", ufe.Message)
	}
	if ufe.Reason != "invalid yaml" {
		t.Errorf("reason should be inner error message, got %q", ufe.Reason)
	}
}
