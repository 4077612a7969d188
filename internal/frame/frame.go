// Package frame implements the wire codec for the bidirectional transport:
// UTF-8 JSON text envelopes and length-prefixed binary resource frames.
package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/owlcms/competition-hub/internal/version"
)

// TextEnvelope is the decoded shape of an inbound/outbound JSON text frame.
type TextEnvelope struct {
	Version string          `json:"version"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrMissingVersion is returned when a text frame omits the version field.
var ErrMissingVersion = errors.New("missing version")

// ErrInvalidVersion is returned when a text frame's version does not parse as semver.
var ErrInvalidVersion = errors.New("invalid version")

// DecodeText parses a text frame payload into an envelope and validates the
// presence and syntax (not the minimum) of its version field.
func DecodeText(data []byte) (TextEnvelope, error) {
	var env TextEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return TextEnvelope{}, fmt.Errorf("transport malformation: %w", err)
	}
	if env.Version == "" {
		return TextEnvelope{}, ErrMissingVersion
	}
	if _, err := version.Parse(env.Version); err != nil {
		return TextEnvelope{}, ErrInvalidVersion
	}
	return env, nil
}

// zipMagic is the four-byte local-file-header signature at the start of a ZIP archive.
var zipMagic = [4]byte{0x50, 0x4B, 0x03, 0x04}

// legacyLengthThreshold is the boundary above which an oversized leading
// length field is reinterpreted as the historical headerless ZIP fallback.
const legacyLengthThreshold = 10 * 1024 * 1024

// versionedCandidateMax is the largest leading length treated as a candidate
// version-string length when probing for the versioned binary layout.
const versionedCandidateMax = 20

// BinaryFrame is the decoded shape of an inbound binary frame.
type BinaryFrame struct {
	// Version is empty for the legacy layout and for the headerless ZIP fallback.
	Version string
	Type    string
	Payload []byte
}

// DecodeBinary parses a binary frame using the versioned, legacy, or
// ZIP-magic-fallback layouts described by the transport's framing rules.
func DecodeBinary(data []byte) (BinaryFrame, error) {
	if len(data) < 4 {
		return BinaryFrame{}, errors.New("frame truncated: missing length header")
	}
	leading := binary.BigEndian.Uint32(data[:4])
	if leading == 0 {
		return BinaryFrame{}, errors.New("protocol error: zero length field")
	}

	if leading > legacyLengthThreshold && len(data) >= 4 && [4]byte{data[0], data[1], data[2], data[3]} == zipMagic {
		return BinaryFrame{Type: "flags_zip", Payload: data}, nil
	}

	if leading <= versionedCandidateMax {
		if versioned, ok := tryVersionedLayout(data, leading); ok {
			return versioned, nil
		}
	}

	return decodeLegacyLayout(data, leading)
}

func tryVersionedLayout(data []byte, versionLen uint32) (BinaryFrame, bool) {
	end := 4 + int(versionLen)
	if end > len(data) {
		return BinaryFrame{}, false
	}
	candidate := data[4:end]
	if !utf8.Valid(candidate) {
		return BinaryFrame{}, false
	}
	if _, err := version.Parse(string(candidate)); err != nil {
		return BinaryFrame{}, false
	}

	offset := end
	if offset+4 > len(data) {
		return BinaryFrame{}, false
	}
	typeLen := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4
	if typeLen == 0 || offset+int(typeLen) > len(data) {
		return BinaryFrame{}, false
	}
	typeBytes := data[offset : offset+int(typeLen)]
	if !utf8.Valid(typeBytes) {
		return BinaryFrame{}, false
	}
	offset += int(typeLen)
	return BinaryFrame{
		Version: string(candidate),
		Type:    string(typeBytes),
		Payload: data[offset:],
	}, true
}

func decodeLegacyLayout(data []byte, typeLen uint32) (BinaryFrame, error) {
	end := 4 + int(typeLen)
	if end > len(data) {
		return BinaryFrame{}, errors.New("protocol error: read past end of buffer")
	}
	typeBytes := data[4:end]
	if !utf8.Valid(typeBytes) {
		return BinaryFrame{}, errors.New("protocol error: type is not valid UTF-8")
	}
	return BinaryFrame{Type: string(typeBytes), Payload: data[end:]}, nil
}

// KnownBinaryTypes lists the binary frame type names the hub recognizes.
// database and database_zip are synonyms, as are flags and flags_zip, and
// pictures and pictures_zip.
var KnownBinaryTypes = map[string]bool{
	"database_zip":     true,
	"database":         true,
	"flags_zip":        true,
	"flags":            true,
	"logos_zip":        true,
	"pictures_zip":     true,
	"pictures":         true,
	"translations_zip": true,
}

// IsKnownBinaryType reports whether typeName is a recognized binary frame type.
func IsKnownBinaryType(typeName string) bool {
	return KnownBinaryTypes[typeName]
}

// CanonicalBinaryType maps synonym binary type names onto their canonical form.
func CanonicalBinaryType(typeName string) string {
	switch typeName {
	case "database":
		return "database_zip"
	case "flags":
		return "flags_zip"
	case "pictures":
		return "pictures_zip"
	default:
		return typeName
	}
}
