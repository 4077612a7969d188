// Package owlcmssim drives a scripted sequence of producer frames against a
// running hub over a real WebSocket connection, the way
// tools/replay_player feeds recorded frames back into a broker.
package owlcmssim

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// Step is one scripted frame to send to the hub.
type Step struct {
	// Kind is "text" or "binary".
	Kind string `json:"kind"`
	// Type is the frame's type discriminator ("database", "update",
	// "timer", "decision" for text; "database_zip", "flags_zip",
	// "translations_zip", etc. for binary).
	Type string `json:"type"`
	// Version stamps the protocol version on a text frame; when empty, Run's
	// defaultVersion is used. Binary frames are sent without a version.
	Version string `json:"version,omitempty"`
	// Payload is the JSON body for a text frame.
	Payload json.RawMessage `json:"payload,omitempty"`
	// PayloadBase64 is the raw bytes for a binary frame (typically a ZIP archive).
	PayloadBase64 string `json:"payload_base64,omitempty"`
}

// LoadFixture reads a JSON array of Steps from path.
func LoadFixture(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return steps, nil
}

// Dial opens a WebSocket connection to the hub's producer endpoint.
func Dial(url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// Result pairs a sent Step with the hub's decoded response envelope.
type Result struct {
	Step     Step
	Response map[string]interface{}
	Elapsed  time.Duration
}

// Run sends each step in order over conn, waiting for and decoding the
// hub's response envelope after every frame, and returns the outcomes in order.
func Run(conn *websocket.Conn, defaultVersion string, steps []Step) ([]Result, error) {
	results := make([]Result, 0, len(steps))
	for _, step := range steps {
		version := step.Version
		if version == "" {
			version = defaultVersion
		}

		start := time.Now()
		var sendErr error
		switch step.Kind {
		case "binary":
			sendErr = sendBinary(conn, step)
		default:
			sendErr = sendText(conn, version, step)
		}
		if sendErr != nil {
			return results, fmt.Errorf("send step %q/%q: %w", step.Kind, step.Type, sendErr)
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return results, fmt.Errorf("read response for %q/%q: %w", step.Kind, step.Type, err)
		}
		var resp map[string]interface{}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return results, fmt.Errorf("decode response for %q/%q: %w", step.Kind, step.Type, err)
		}

		results = append(results, Result{Step: step, Response: resp, Elapsed: time.Since(start)})
	}
	return results, nil
}

func sendText(conn *websocket.Conn, version string, step Step) error {
	payload := step.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	env := map[string]interface{}{
		"version": version,
		"type":    step.Type,
		"payload": payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// sendBinary encodes the legacy [length][type][payload] binary layout; the
// hub's frame decoder falls back to it whenever the type bytes don't also
// happen to parse as a semver version string.
func sendBinary(conn *websocket.Conn, step Step) error {
	payload, err := base64.StdEncoding.DecodeString(step.PayloadBase64)
	if err != nil {
		return fmt.Errorf("decode payload_base64: %w", err)
	}
	typeBytes := []byte(step.Type)
	frame := make([]byte, 4+len(typeBytes)+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(typeBytes)))
	copy(frame[4:], typeBytes)
	copy(frame[4+len(typeBytes):], payload)
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}
