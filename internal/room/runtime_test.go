package room

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/edoardomanca/greta/internal/audio"
	"github.com/edoardomanca/greta/internal/calllog"
	"github.com/edoardomanca/greta/internal/config"
	"github.com/edoardomanca/greta/internal/observability"
	"github.com/edoardomanca/greta/internal/transcript"
)

var testMetrics = observability.NewMetrics("greta_room_test")

type scriptedTrack struct {
	packets []*rtp.Packet
}

func (s *scriptedTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(s.packets) == 0 {
		return nil, nil, io.EOF
	}
	pkt := s.packets[0]
	s.packets = s.packets[1:]
	return pkt, nil, nil
}

type countingWriter struct {
	packets int
	failAt  int
	closed  bool
}

func (c *countingWriter) WriteRTP(p *rtp.Packet) error {
	c.packets++
	if c.failAt > 0 && c.packets >= c.failAt {
		return errors.New("disk full")
	}
	return nil
}

func (c *countingWriter) Close() error {
	c.closed = true
	return nil
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, _ := newTestRuntimeWithStore(t)
	return rt
}

func newTestRuntimeWithStore(t *testing.T) (*Runtime, *calllog.InMemoryStore) {
	t.Helper()
	cfg := config.Config{
		LiveKitURL:    "http://localhost:7880",
		AgentIdentity: "greta-agent",
		RecordingsDir: t.TempDir(),
	}
	store := calllog.NewInMemoryStore()
	return NewRuntime(cfg, store, testMetrics, log.New(io.Discard, "", 0)), store
}

func TestCaptureDrainsTrack(t *testing.T) {
	rt := newTestRuntime(t)
	track := &scriptedTrack{packets: []*rtp.Packet{
		{Payload: []byte{1, 2, 3}},
		{Payload: []byte{4, 5}},
	}}
	writer := &countingWriter{}

	rt.capture(track, writer)
	if writer.packets != 2 {
		t.Errorf("wrote %d packets, want 2", writer.packets)
	}
}

func TestCaptureStopsOnWriteError(t *testing.T) {
	rt := newTestRuntime(t)
	track := &scriptedTrack{packets: []*rtp.Packet{
		{Payload: []byte{1}}, {Payload: []byte{2}}, {Payload: []byte{3}},
	}}
	writer := &countingWriter{failAt: 1}

	rt.capture(track, writer)
	if writer.packets != 1 {
		t.Errorf("wrote %d packets after a failing writer, want 1", writer.packets)
	}
}

func TestSaveTurnsWithoutCallAreNoOps(t *testing.T) {
	rt := newTestRuntime(t)
	// Not attached: nothing to record, must not panic.
	rt.SaveUserTurn(context.Background(), "hello", "en")
	rt.SaveAssistantTurn(context.Background(), "hi")
}

func TestHangupWithoutRoom(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Hangup(context.Background()); err == nil {
		t.Error("Hangup with no room returned nil error")
	}
}

func TestDetachWithoutRoom(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.Detach(context.Background()); err != nil {
		t.Errorf("Detach with no room: %v", err)
	}
}

func TestAttachRejectsSecondRoom(t *testing.T) {
	rt := newTestRuntime(t)
	rt.mu.Lock()
	rt.roomName = "call-abc"
	rt.mu.Unlock()

	err := rt.Attach(context.Background(), "call-xyz")
	if !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("second Attach error = %v, want ErrAlreadyAttached", err)
	}
	if got := rt.currentRoomName(); got != "call-abc" {
		t.Errorf("room name after rejected attach = %q, want call-abc", got)
	}
}

// attachHandle mirrors how the runtime is wired into a handler: the call state
// is set directly so turn ingest can be exercised without a live room.
func attachHandle(t *testing.T, rt *Runtime, store *calllog.InMemoryStore, callID, roomName string) *transcript.Recorder {
	t.Helper()
	if err := store.StartCall(context.Background(), calllog.Call{ID: callID, RoomName: roomName}); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	script := transcript.NewRecorder(filepath.Join(t.TempDir(), "transcript.json"))
	script.Start()
	rt.mu.Lock()
	rt.callID = callID
	rt.roomName = roomName
	rt.script = script
	rt.mu.Unlock()
	return script
}

func TestDataPacketRecordsTranscriptionTurns(t *testing.T) {
	rt, store := newTestRuntimeWithStore(t)
	script := attachHandle(t, rt, store, "c1", "call-abc")

	for _, ev := range []transcriptionEvent{
		{Role: transcript.RoleUser, Text: "what's the weather?", Language: "en"},
		{Role: transcript.RoleAssistant, Text: "Sunny in Milan."},
	} {
		payload, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		rt.onDataPacket(&lksdk.UserDataPacket{Topic: "transcription", Payload: payload}, lksdk.DataReceiveParams{})
	}

	turns, err := store.Turns(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != transcript.RoleUser || turns[0].Text != "what's the weather?" {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Role != transcript.RoleAssistant || turns[1].Text != "Sunny in Milan." {
		t.Errorf("second turn = %+v", turns[1])
	}
	if script.Len() != 2 {
		t.Errorf("transcript has %d messages, want 2", script.Len())
	}
}

func TestDataPacketIgnoresOtherTopicsAndBlankText(t *testing.T) {
	rt, store := newTestRuntimeWithStore(t)
	attachHandle(t, rt, store, "c1", "call-abc")

	payload, _ := json.Marshal(transcriptionEvent{Role: transcript.RoleUser, Text: "chat message"})
	rt.onDataPacket(&lksdk.UserDataPacket{Topic: "chat", Payload: payload}, lksdk.DataReceiveParams{})

	blank, _ := json.Marshal(transcriptionEvent{Role: transcript.RoleUser, Text: "   "})
	rt.onDataPacket(&lksdk.UserDataPacket{Topic: "transcription", Payload: blank}, lksdk.DataReceiveParams{})

	rt.onDataPacket(&lksdk.UserDataPacket{Topic: "transcription", Payload: []byte("not json")}, lksdk.DataReceiveParams{})

	turns, err := store.Turns(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d turns, want 0", len(turns))
	}
}

func TestTelephonyTracksCaptureToWAV(t *testing.T) {
	rt := newTestRuntime(t)
	codec := webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: 8000,
	}}

	writer, name, err := rt.newTrackWriter(codec, "caller")
	if err != nil {
		t.Fatalf("newTrackWriter: %v", err)
	}
	if !strings.HasSuffix(name, ".wav") {
		t.Fatalf("telephony capture file = %q, want a .wav leg", name)
	}

	// 0xFF is mu-law silence; four packets of 160 samples each.
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = 0xFF
	}
	track := &scriptedTrack{packets: []*rtp.Packet{
		{Payload: frame}, {Payload: frame}, {Payload: frame}, {Payload: frame},
	}}
	rt.capture(track, writer)
	if err := writer.Close(); err != nil {
		t.Fatalf("close capture: %v", err)
	}

	pcm, rate, err := audio.ReadWAVPCM16LEFile(filepath.Join(rt.cfg.RecordingsDir, name))
	if err != nil {
		t.Fatalf("read captured leg: %v", err)
	}
	if rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
	if want := 4 * 160 * 2; len(pcm) != want {
		t.Errorf("pcm length = %d, want %d", len(pcm), want)
	}
	for i, b := range pcm {
		if b != 0 {
			t.Fatalf("pcm[%d] = %#x, want mu-law silence to decode to zero", i, b)
		}
	}
}

func TestOpusTracksCaptureToOGG(t *testing.T) {
	rt := newTestRuntime(t)
	codec := webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
	}}

	writer, name, err := rt.newTrackWriter(codec, "web-user")
	if err != nil {
		t.Fatalf("newTrackWriter: %v", err)
	}
	defer writer.Close()
	if !strings.HasSuffix(name, ".ogg") {
		t.Errorf("opus capture file = %q, want an .ogg container", name)
	}
}
