package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/edoardomanca/greta/internal/calllog"
	"github.com/edoardomanca/greta/internal/config"
	"github.com/edoardomanca/greta/internal/observability"
	"github.com/edoardomanca/greta/internal/room"
)

// promauto registers on the process-global registry, so the test binary gets
// exactly one Metrics value.
var testMetrics = observability.NewMetrics("greta_httpapi_test")

type fakeBrain struct {
	greeting string
	replies  map[string]string
	hangupOn string
	err      error
}

func (f *fakeBrain) Greet(ctx context.Context) (string, error) {
	return f.greeting, nil
}

func (f *fakeBrain) Reply(ctx context.Context, text string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if text == f.hangupOn {
		return "Goodbye! Have a great day!", true, nil
	}
	return f.replies[text], false, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		AgentIdentity:  "greta-agent",
		RoomPrefix:     "call-",
		STTModel:       "assemblyai/universal-streaming:en",
		LLMModel:       "openai/gpt-4.1-mini",
		RecordingsDir:  filepath.Join(t.TempDir(), "recordings"),
		AllowAnyOrigin: false,
	}
}

func newTestServer(t *testing.T, cfg config.Config, brain Conversationalist) (*Server, *calllog.InMemoryStore) {
	t.Helper()
	store := calllog.NewInMemoryStore()
	return New(cfg, store, brain, nil, testMetrics), store
}

type fakeRoomRuntime struct {
	attached  string
	attachErr error
	hungUp    bool
	detached  bool
}

func (f *fakeRoomRuntime) Attach(ctx context.Context, roomName string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = roomName
	return nil
}

func (f *fakeRoomRuntime) Hangup(ctx context.Context) error {
	if f.attached == "" {
		return room.ErrNotAttached
	}
	f.hungUp = true
	f.attached = ""
	return nil
}

func (f *fakeRoomRuntime) Detach(ctx context.Context) error {
	f.detached = true
	f.attached = ""
	return nil
}

func postJSON(t *testing.T, handler http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec.Code, body
}

func getJSON(t *testing.T, handler http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec.Code, body
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t), nil)
	router := srv.Router()

	code, body := getJSON(t, router, "/healthz")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", code, body)
	}

	code, body = getJSON(t, router, "/readyz")
	if code != http.StatusOK || body["status"] != "ready" {
		t.Errorf("readyz = %d %v", code, body)
	}
	if body["console_configured"] != false {
		t.Errorf("console_configured = %v with no brain", body["console_configured"])
	}
}

func TestStatusReportsModels(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t), nil)
	code, body := getJSON(t, srv.Router(), "/v1/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["agent_identity"] != "greta-agent" {
		t.Errorf("agent_identity = %v", body["agent_identity"])
	}
	models, ok := body["models"].(map[string]any)
	if !ok {
		t.Fatalf("models = %T", body["models"])
	}
	if models["llm"] != "openai/gpt-4.1-mini" {
		t.Errorf("llm = %v", models["llm"])
	}
}

func TestListCalls(t *testing.T) {
	srv, store := newTestServer(t, testConfig(t), nil)
	call := calllog.Call{ID: "c1", RoomName: "call-abc", ParticipantKind: "sip"}
	if err := store.StartCall(context.Background(), call); err != nil {
		t.Fatal(err)
	}

	code, body := getJSON(t, srv.Router(), "/v1/calls")
	if code != http.StatusOK {
		t.Fatalf("calls = %d", code)
	}
	calls, ok := body["calls"].([]any)
	if !ok || len(calls) != 1 {
		t.Fatalf("calls body = %v", body["calls"])
	}
	first := calls[0].(map[string]any)
	if first["room_name"] != "call-abc" {
		t.Errorf("room_name = %v", first["room_name"])
	}

	code, body = getJSON(t, srv.Router(), "/v1/calls/"+call.ID+"/turns")
	if code != http.StatusOK {
		t.Fatalf("turns = %d %v", code, body)
	}

	code, _ = getJSON(t, srv.Router(), "/v1/calls?limit=bogus")
	if code != http.StatusBadRequest {
		t.Errorf("bogus limit = %d, want 400", code)
	}
}

func TestListTurnsUnknownCall(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t), nil)
	code, _ := getJSON(t, srv.Router(), "/v1/calls/nope/turns")
	if code != http.StatusNotFound {
		t.Errorf("unknown call = %d, want 404", code)
	}
}

func TestListRecordings(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"audio_a.wav", "transcript_a.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(cfg.RecordingsDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	srv, _ := newTestServer(t, cfg, nil)
	code, body := getJSON(t, srv.Router(), "/v1/recordings")
	if code != http.StatusOK {
		t.Fatalf("recordings = %d", code)
	}
	recs, ok := body["recordings"].([]any)
	if !ok {
		t.Fatalf("recordings body = %T", body["recordings"])
	}
	if len(recs) != 2 {
		t.Errorf("listed %d recordings, want 2 (txt excluded)", len(recs))
	}
}

func TestListRecordingsMissingDir(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t), nil)
	code, body := getJSON(t, srv.Router(), "/v1/recordings")
	if code != http.StatusOK {
		t.Fatalf("recordings = %d", code)
	}
	if recs, ok := body["recordings"].([]any); !ok || len(recs) != 0 {
		t.Errorf("recordings = %v, want empty list", body["recordings"])
	}
}

func dialConsole(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/console/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial console: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConsoleConversation(t *testing.T) {
	brain := &fakeBrain{
		greeting: "Hey, I'm Greta!",
		replies:  map[string]string{"what's the weather in Rome?": "Sunny, 28 degrees."},
		hangupOn: "bye",
	}
	srv, _ := newTestServer(t, testConfig(t), brain)
	conn := dialConsole(t, srv)

	var out consoleOutbound
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if out.Text != "Hey, I'm Greta!" {
		t.Errorf("greeting = %q", out.Text)
	}

	if err := conn.WriteJSON(consoleInbound{Text: "what's the weather in Rome?"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatal(err)
	}
	if out.Text != "Sunny, 28 degrees." || out.Hangup {
		t.Errorf("reply = %+v", out)
	}

	if err := conn.WriteJSON(consoleInbound{Text: "bye"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Hangup {
		t.Errorf("farewell reply = %+v, want hangup", out)
	}

	// Server closes the connection after the farewell.
	if err := conn.ReadJSON(&out); err == nil {
		t.Error("connection still open after hangup")
	}
}

func TestConsoleReportsBrainErrors(t *testing.T) {
	brain := &fakeBrain{greeting: "Hey!", err: errors.New("model unavailable")}
	srv, _ := newTestServer(t, testConfig(t), brain)
	conn := dialConsole(t, srv)

	var out consoleOutbound
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatal(err)
	}

	if err := conn.WriteJSON(consoleInbound{Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatal(err)
	}
	if out.Error == "" {
		t.Errorf("reply = %+v, want an error payload", out)
	}
}

func TestAttachAndHangupRoom(t *testing.T) {
	rooms := &fakeRoomRuntime{}
	store := calllog.NewInMemoryStore()
	srv := New(testConfig(t), store, nil, rooms, testMetrics)
	router := srv.Router()

	code, body := postJSON(t, router, "/v1/rooms/call-abc/attach")
	if code != http.StatusOK {
		t.Fatalf("attach = %d %v", code, body)
	}
	if rooms.attached != "call-abc" {
		t.Errorf("runtime attached to %q", rooms.attached)
	}

	code, _ = postJSON(t, router, "/v1/rooms/hangup")
	if code != http.StatusOK {
		t.Fatalf("hangup = %d", code)
	}
	if !rooms.hungUp {
		t.Error("runtime never hung up")
	}

	// A second hangup has no call to end.
	code, body = postJSON(t, router, "/v1/rooms/hangup")
	if code != http.StatusConflict {
		t.Errorf("hangup with no call = %d %v, want 409", code, body)
	}
}

func TestAttachRoomConflict(t *testing.T) {
	rooms := &fakeRoomRuntime{attachErr: room.ErrAlreadyAttached}
	srv := New(testConfig(t), calllog.NewInMemoryStore(), nil, rooms, testMetrics)

	code, body := postJSON(t, srv.Router(), "/v1/rooms/call-b/attach")
	if code != http.StatusConflict {
		t.Errorf("second attach = %d %v, want 409", code, body)
	}
}

func TestRoomEndpointsWithoutRuntime(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t), nil)
	for _, path := range []string{"/v1/rooms/call-x/attach", "/v1/rooms/hangup", "/v1/rooms/detach"} {
		if code, _ := postJSON(t, srv.Router(), path); code != http.StatusNotImplemented {
			t.Errorf("%s without runtime = %d, want 501", path, code)
		}
	}
}

func TestDetachRoom(t *testing.T) {
	rooms := &fakeRoomRuntime{attached: "call-abc"}
	srv := New(testConfig(t), calllog.NewInMemoryStore(), nil, rooms, testMetrics)

	code, _ := postJSON(t, srv.Router(), "/v1/rooms/detach")
	if code != http.StatusOK {
		t.Fatalf("detach = %d", code)
	}
	if !rooms.detached {
		t.Error("runtime never detached")
	}
}

func TestConsoleUnavailableWithoutBrain(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(t), nil)
	code, _ := getJSON(t, srv.Router(), "/v1/console/ws")
	if code != http.StatusNotImplemented {
		t.Errorf("console without brain = %d, want 501", code)
	}
}
