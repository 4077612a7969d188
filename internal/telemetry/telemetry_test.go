package telemetry

import (
	"errors"
	"testing"
)

func TestInitDisabledWithoutDSN(t *testing.T) {
	sink, err := Init("", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.enabled {
		t.Fatalf("expected sink to be disabled without a DSN")
	}
	// Must not panic even though nothing is configured.
	sink.CaptureError(errors.New("boom"), map[string]string{"component": "test"})
	sink.Recover("panic value", nil)
	sink.Flush()
}

func TestCaptureErrorNilSinkIsNoop(t *testing.T) {
	var sink *Sink
	sink.CaptureError(errors.New("boom"), nil)
}
