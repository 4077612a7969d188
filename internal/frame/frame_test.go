package frame

import (
	"encoding/binary"
	"testing"
)

func TestDecodeText(t *testing.T) {
	env, err := DecodeText([]byte(`{"version":"64.0.0","type":"database","payload":{"a":1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != "database" {
		t.Fatalf("expected type database, got %q", env.Type)
	}
}

func TestDecodeTextMissingVersion(t *testing.T) {
	_, err := DecodeText([]byte(`{"type":"database","payload":{}}`))
	if err != ErrMissingVersion {
		t.Fatalf("expected ErrMissingVersion, got %v", err)
	}
}

func TestDecodeTextInvalidVersion(t *testing.T) {
	_, err := DecodeText([]byte(`{"version":"nope","type":"database","payload":{}}`))
	if err != ErrInvalidVersion {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func buildVersionedFrame(version, frameType string, payload []byte) []byte {
	buf := make([]byte, 0, 8+len(version)+len(frameType)+len(payload))
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(version)))
	buf = append(buf, lenBuf...)
	buf = append(buf, version...)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(frameType)))
	buf = append(buf, lenBuf...)
	buf = append(buf, frameType...)
	buf = append(buf, payload...)
	return buf
}

func buildLegacyFrame(frameType string, payload []byte) []byte {
	buf := make([]byte, 0, 4+len(frameType)+len(payload))
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(frameType)))
	buf = append(buf, lenBuf...)
	buf = append(buf, frameType...)
	buf = append(buf, payload...)
	return buf
}

func TestDecodeBinaryVersioned(t *testing.T) {
	raw := buildVersionedFrame("64.0.0", "translations_zip", []byte("payload-bytes"))
	got, err := DecodeBinary(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != "64.0.0" || got.Type != "translations_zip" || string(got.Payload) != "payload-bytes" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestDecodeBinaryLegacy(t *testing.T) {
	raw := buildLegacyFrame("flags_zip", []byte("zipbytes"))
	got, err := DecodeBinary(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != "" || got.Type != "flags_zip" || string(got.Payload) != "zipbytes" {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestDecodeBinaryZipFallback(t *testing.T) {
	// The first four bytes double as both the (oversized) leading length
	// field and the ZIP local file header signature.
	raw := []byte{0x50, 0x4B, 0x03, 0x04}
	raw = append(raw, []byte("restofarchive")...)
	got, err := DecodeBinary(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Type != "flags_zip" {
		t.Fatalf("expected flags_zip fallback, got %+v", got)
	}
}

func TestDecodeBinaryZeroLength(t *testing.T) {
	raw := make([]byte, 8)
	if _, err := DecodeBinary(raw); err == nil {
		t.Fatalf("expected error for zero length field")
	}
}

func TestDecodeBinaryTruncated(t *testing.T) {
	if _, err := DecodeBinary([]byte{1, 2}); err == nil {
		t.Fatalf("expected error for truncated frame")
	}
}
