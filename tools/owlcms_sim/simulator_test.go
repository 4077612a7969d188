package owlcmssim

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// echoFrameServer upgrades to a WebSocket and replies to every inbound frame
// with a fixed 200 envelope, standing in for a real hub in this package's
// tests (which only exercise fixture loading and wire encoding, not the
// hub's own state machine - that's covered by main_test.go).
func echoFrameServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			resp, _ := json.Marshal(map[string]interface{}{"status": 200, "message": "processed"})
			if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
				return
			}
		}
	}))
}

func TestLoadFixtureParsesSteps(t *testing.T) {
	path := t.TempDir() + "/fixture.json"
	fixture := `[
		{"kind": "text", "type": "database", "payload": {"athletes": []}},
		{"kind": "binary", "type": "flags_zip", "payload_base64": "aGVsbG8="}
	]`
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	steps, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Type != "database" || steps[1].Kind != "binary" {
		t.Fatalf("unexpected steps: %+v", steps)
	}
}

func TestRunSendsEachStepAndCollectsResponses(t *testing.T) {
	server := echoFrameServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := Dial(wsURL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	steps := []Step{
		{Kind: "text", Type: "database", Payload: json.RawMessage(`{"athletes":[]}`)},
		{Kind: "binary", Type: "flags_zip", PayloadBase64: base64.StdEncoding.EncodeToString([]byte("zip-bytes"))},
	}

	results, err := Run(conn, "54.0.0", steps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		status, _ := r.Response["status"].(float64)
		if status != 200 {
			t.Fatalf("expected status 200, got %+v", r.Response)
		}
	}
}
