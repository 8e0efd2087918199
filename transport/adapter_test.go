package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"
)

// TestDisconnectReasonConstants checks all reasons are distinct and named.
func TestDisconnectReasonConstants(t *testing.T) {
	reasons := []DisconnectReason{
		ReasonUnknown,
		ReasonNetworkError,
		ReasonTimeout,
		ReasonClosedClean,
		ReasonProtocolError,
	}

	seen := make(map[DisconnectReason]bool)
	names := make(map[string]bool)
	for _, r := range reasons {
		if seen[r] {
			t.Errorf("duplicate DisconnectReason value: %d", r)
		}
		seen[r] = true
		if names[r.String()] {
			t.Errorf("duplicate DisconnectReason name: %s", r)
		}
		names[r.String()] = true
	}
}

func TestDisconnectEventError(t *testing.T) {
	clean := DisconnectEvent{Reason: ReasonClosedClean}.Error()
	if !errors.Is(clean, ErrTransportClosed) {
		t.Errorf("clean close should wrap ErrTransportClosed, got %v", clean)
	}

	failed := DisconnectEvent{Reason: ReasonNetworkError, Err: io.ErrUnexpectedEOF}.Error()
	if !errors.Is(failed, io.ErrUnexpectedEOF) {
		t.Errorf("expected wrapped io.ErrUnexpectedEOF, got %v", failed)
	}

	var derr *DisconnectError
	if !errors.As(failed, &derr) || derr.Reason != ReasonNetworkError {
		t.Errorf("expected DisconnectError with ReasonNetworkError, got %v", failed)
	}
}

func TestClassifyDial(t *testing.T) {
	bg := context.Background()
	boom := errors.New("boom")

	if code, ok := IsRejected(ClassifyDial(bg, http.StatusNotFound, boom)); !ok || code != CodeRoomNotFound {
		t.Errorf("404 should be rejected as %s, got %q %v", CodeRoomNotFound, code, ok)
	}
	if code, ok := IsRejected(ClassifyDial(bg, http.StatusForbidden, boom)); !ok || code != CodeForbidden {
		t.Errorf("403 should be rejected as %s, got %q %v", CodeForbidden, code, ok)
	}
	if err := ClassifyDial(bg, http.StatusBadGateway, boom); err.Kind != ConnectNetwork {
		t.Errorf("502 should be a network error, got %v", err.Kind)
	}
	if err := ClassifyDial(bg, 0, boom); err.Kind != ConnectNetwork || !errors.Is(err, boom) {
		t.Errorf("plain failure should be a wrapped network error, got %v", err)
	}

	ctx, cancel := context.WithTimeout(bg, time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	if err := ClassifyDial(ctx, 0, ctx.Err()); err.Kind != ConnectTimeout {
		t.Errorf("expired context should classify as timeout, got %v", err.Kind)
	}
}

func TestIsRejectedThroughWrapping(t *testing.T) {
	err := Rejected("invalid_password", nil)
	wrapped := errors.Join(errors.New("join failed"), err)

	code, ok := IsRejected(wrapped)
	if !ok || code != "invalid_password" {
		t.Errorf("expected rejection to survive wrapping, got %q %v", code, ok)
	}
	if _, ok := IsRejected(&ConnectError{Kind: ConnectTimeout}); ok {
		t.Error("timeout must not be reported as rejected")
	}
}
