package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/edoardomanca/greta/internal/agent"
	"github.com/edoardomanca/greta/internal/audio"
	"github.com/edoardomanca/greta/internal/calllog"
	"github.com/edoardomanca/greta/internal/config"
	"github.com/edoardomanca/greta/internal/observability"
	"github.com/edoardomanca/greta/internal/transcript"
)

// audioWriter is the slice of the ogg writer the capture loop needs.
type audioWriter interface {
	WriteRTP(p *rtp.Packet) error
	Close() error
}

// rtpReader matches webrtc.TrackRemote's packet read method.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

var (
	ErrAlreadyAttached = errors.New("already attached")
	ErrNotAttached     = errors.New("not attached to a room")
)

// Runtime attaches the assistant to a LiveKit room: it registers the call,
// picks the noise cancellation preset for each participant, captures inbound
// audio to an OGG file, and records the conversation transcript.
type Runtime struct {
	cfg     config.Config
	session agent.SessionConfig
	calls   calllog.Store
	metrics *observability.Metrics
	logger  *log.Logger

	roomClient *lksdk.RoomServiceClient

	mu        sync.Mutex
	room      *lksdk.Room
	callID    string
	roomName  string
	startedAt time.Time
	writers   []audioWriter
	script    *transcript.Recorder
}

func NewRuntime(cfg config.Config, calls calllog.Store, metrics *observability.Metrics, logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.Default()
	}
	return &Runtime{
		cfg:        cfg,
		session:    agent.NewSessionConfig(cfg),
		calls:      calls,
		metrics:    metrics,
		logger:     logger,
		roomClient: lksdk.NewRoomServiceClient(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret),
	}
}

// SessionConfig exposes the pipeline configuration this runtime dispatches
// with, so callers can log or publish it.
func (rt *Runtime) SessionConfig() agent.SessionConfig {
	return rt.session
}

// Attach joins the room as the agent participant and starts handling it.
func (rt *Runtime) Attach(ctx context.Context, roomName string) error {
	// Reserve the room name before dialing so a concurrent Attach cannot
	// also pass the check and leak a second connection.
	rt.mu.Lock()
	if rt.roomName != "" {
		attached := rt.roomName
		rt.mu.Unlock()
		return fmt.Errorf("%w: room %s", ErrAlreadyAttached, attached)
	}
	rt.roomName = roomName
	rt.mu.Unlock()

	callID := fmt.Sprintf("%s-%d", roomName, time.Now().UnixNano())
	startedAt := time.Now().UTC()

	room, err := lksdk.ConnectToRoom(rt.cfg.LiveKitURL, lksdk.ConnectInfo{
		APIKey:              rt.cfg.LiveKitAPIKey,
		APISecret:           rt.cfg.LiveKitAPISecret,
		RoomName:            roomName,
		ParticipantIdentity: rt.cfg.AgentIdentity,
	}, &lksdk.RoomCallback{
		OnParticipantConnected: rt.onParticipantConnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: rt.onTrackSubscribed,
			OnDataPacket:      rt.onDataPacket,
		},
	})
	if err != nil {
		rt.mu.Lock()
		rt.roomName = ""
		rt.mu.Unlock()
		return fmt.Errorf("connect to room %s: %w", roomName, err)
	}

	script := transcript.NewRecorder(transcript.FilePath(rt.cfg.RecordingsDir, startedAt))
	script.Start()

	rt.mu.Lock()
	rt.room = room
	rt.callID = callID
	rt.roomName = roomName
	rt.startedAt = startedAt
	rt.script = script
	rt.mu.Unlock()

	if err := rt.calls.StartCall(ctx, calllog.Call{
		ID:        callID,
		RoomName:  roomName,
		StartedAt: startedAt,
	}); err != nil {
		rt.logger.Printf("room %s: record call start: %v", roomName, err)
	}

	rt.metrics.ActiveCalls.Inc()
	rt.metrics.CallEvents.WithLabelValues("attached").Inc()
	rt.logger.Printf("room %s: attached as %s (stt=%s llm=%s tts=%s)",
		roomName, rt.cfg.AgentIdentity, rt.session.STTModel, rt.session.LLMModel, rt.session.TTSModel)

	for _, rp := range room.GetRemoteParticipants() {
		rt.onParticipantConnected(rp)
	}
	return nil
}

// transcriptionTopic is the data channel topic the hosted pipeline publishes
// finalized transcription turns on.
const transcriptionTopic = "transcription"

type transcriptionEvent struct {
	Role     string `json:"role"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// onDataPacket ingests transcription turns published over the room's data
// channel and records them in the transcript and the call log.
func (rt *Runtime) onDataPacket(data lksdk.DataPacket, _ lksdk.DataReceiveParams) {
	user, ok := data.(*lksdk.UserDataPacket)
	if !ok || user.Topic != transcriptionTopic {
		return
	}

	var ev transcriptionEvent
	if err := json.Unmarshal(user.Payload, &ev); err != nil {
		rt.logger.Printf("room %s: bad transcription payload: %v", rt.currentRoomName(), err)
		return
	}
	if strings.TrimSpace(ev.Text) == "" {
		return
	}

	if ev.Role == transcript.RoleAssistant {
		rt.SaveAssistantTurn(context.Background(), ev.Text)
		return
	}
	rt.SaveUserTurn(context.Background(), ev.Text, ev.Language)
}

func (rt *Runtime) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	kind := KindFromSDK(rp.Kind())
	preset := SelectNoiseCancellation(kind)
	rt.metrics.NoisePresets.WithLabelValues(string(preset)).Inc()
	rt.logger.Printf("room %s: participant %s kind=%s noise_cancellation=%s",
		rt.currentRoomName(), rp.Identity(), kind, preset)
}

func (rt *Runtime) currentRoomName() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.roomName
}

func (rt *Runtime) onTrackSubscribed(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}

	if err := os.MkdirAll(rt.cfg.RecordingsDir, 0o755); err != nil {
		rt.logger.Printf("room %s: recordings dir: %v", rt.currentRoomName(), err)
		return
	}

	writer, name, err := rt.newTrackWriter(track.Codec(), rp.Identity())
	if err != nil {
		rt.logger.Printf("room %s: %v", rt.currentRoomName(), err)
		return
	}

	rt.mu.Lock()
	rt.writers = append(rt.writers, writer)
	rt.mu.Unlock()

	rt.logger.Printf("room %s: capturing %s audio to %s", rt.currentRoomName(), rp.Identity(), name)
	go rt.capture(track, writer)
}

// newTrackWriter picks the capture container for a track. Telephony codecs
// (G.711) are expanded to linear PCM and written as per-leg WAV files, which
// is what the recordings mixdown consumes; Opus stays in an OGG container.
func (rt *Runtime) newTrackWriter(codec webrtc.RTPCodecParameters, identity string) (audioWriter, string, error) {
	stamp := time.Now().UTC().Format("20060102_150405")

	var decode func([]byte) []byte
	switch codec.MimeType {
	case webrtc.MimeTypePCMU:
		decode = audio.DecodeMuLaw
	case webrtc.MimeTypePCMA:
		decode = audio.DecodeALaw
	}

	if decode != nil {
		name := fmt.Sprintf("audio_%s_%s.wav", stamp, identity)
		rec := audio.NewRecorder(filepath.Join(rt.cfg.RecordingsDir, name))
		rec.Start()
		rate := int(codec.ClockRate)
		if rate == 0 {
			rate = 8000
		}
		return &wavCapture{rec: rec, decode: decode, rate: rate}, name, nil
	}

	name := fmt.Sprintf("audio_%s_%s.ogg", stamp, identity)
	path := filepath.Join(rt.cfg.RecordingsDir, name)
	writer, err := oggwriter.New(path, 48000, 2)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	return writer, name, nil
}

// wavCapture adapts the WAV recorder to the capture loop by expanding each
// G.711 payload to PCM16.
type wavCapture struct {
	rec    *audio.Recorder
	decode func([]byte) []byte
	rate   int
}

func (w *wavCapture) WriteRTP(p *rtp.Packet) error {
	w.rec.AddFrame(w.decode(p.Payload), w.rate)
	return nil
}

func (w *wavCapture) Close() error {
	_, err := w.rec.Stop()
	return err
}

func (rt *Runtime) capture(track rtpReader, writer audioWriter) {
	var written int64
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			break
		}
		if err := writer.WriteRTP(pkt); err != nil {
			rt.logger.Printf("room %s: write audio: %v", rt.currentRoomName(), err)
			break
		}
		written += int64(len(pkt.Payload))
	}
	rt.metrics.RecordingBytes.Add(float64(written))
}

// SaveUserTurn records one user utterance in the transcript and the call log.
func (rt *Runtime) SaveUserTurn(ctx context.Context, text, language string) {
	rt.mu.Lock()
	callID := rt.callID
	script := rt.script
	rt.mu.Unlock()
	if script == nil {
		return
	}

	script.AddUserMessage(text, language)
	rt.metrics.TranscriptMessages.WithLabelValues(transcript.RoleUser).Inc()
	if err := rt.calls.SaveTurn(ctx, calllog.Turn{
		CallID:   callID,
		Role:     transcript.RoleUser,
		Text:     text,
		Language: language,
	}); err != nil {
		rt.logger.Printf("room %s: save user turn: %v", rt.currentRoomName(), err)
	}
}

// SaveAssistantTurn records one assistant utterance.
func (rt *Runtime) SaveAssistantTurn(ctx context.Context, text string) {
	rt.mu.Lock()
	callID := rt.callID
	script := rt.script
	rt.mu.Unlock()
	if script == nil {
		return
	}

	script.AddAssistantMessage(text)
	rt.metrics.TranscriptMessages.WithLabelValues(transcript.RoleAssistant).Inc()
	if err := rt.calls.SaveTurn(ctx, calllog.Turn{
		CallID: callID,
		Role:   transcript.RoleAssistant,
		Text:   text,
	}); err != nil {
		rt.logger.Printf("room %s: save assistant turn: %v", rt.currentRoomName(), err)
	}
}

// Hangup says goodbye by deleting the room, then finalizes the call record,
// the transcript, and any open audio captures.
func (rt *Runtime) Hangup(ctx context.Context) error {
	rt.mu.Lock()
	roomName := rt.roomName
	rt.mu.Unlock()
	if roomName == "" {
		return ErrNotAttached
	}

	if _, err := rt.roomClient.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: roomName}); err != nil {
		rt.logger.Printf("room %s: delete room: %v", roomName, err)
	}
	rt.metrics.CallEvents.WithLabelValues("hangup").Inc()
	return rt.Detach(ctx)
}

// Detach disconnects from the room and flushes all call state.
func (rt *Runtime) Detach(ctx context.Context) error {
	rt.mu.Lock()
	room := rt.room
	callID := rt.callID
	roomName := rt.roomName
	writers := rt.writers
	script := rt.script
	startedAt := rt.startedAt
	rt.room = nil
	rt.callID = ""
	rt.roomName = ""
	rt.startedAt = time.Time{}
	rt.writers = nil
	rt.script = nil
	rt.mu.Unlock()

	if room == nil {
		return nil
	}
	room.Disconnect()

	for _, w := range writers {
		if err := w.Close(); err != nil {
			rt.logger.Printf("room %s: close recording: %v", roomName, err)
		}
	}

	if script != nil {
		saved, err := script.Stop()
		if err != nil {
			rt.logger.Printf("room %s: save transcript: %v", roomName, err)
		} else if saved > 0 {
			rt.logger.Printf("room %s: transcript saved to %s (%d messages)", roomName, script.Path(), saved)
		}
	}

	endedAt := time.Now().UTC()
	if err := rt.calls.EndCall(ctx, callID, endedAt); err != nil {
		rt.logger.Printf("room %s: record call end: %v", roomName, err)
	}
	if !startedAt.IsZero() {
		rt.metrics.ObserveCallDuration(endedAt.Sub(startedAt))
	}

	rt.metrics.ActiveCalls.Dec()
	rt.metrics.CallEvents.WithLabelValues("detached").Inc()
	rt.logger.Printf("room %s: detached", roomName)
	return nil
}
