package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single transcript entry.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Language  string    `json:"language,omitempty"`
}

// Recording is the JSON document written when a recorder stops.
type Recording struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	Messages        []Message `json:"messages"`
}

// Recorder collects conversation turns and writes them to a JSON file when
// stopped. Blank messages are filtered out, matching what transcription
// backends emit between utterances.
type Recorder struct {
	mu        sync.Mutex
	path      string
	messages  []Message
	startTime time.Time
	recording bool
	now       func() time.Time
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path, now: time.Now}
}

// Start arms the recorder, discarding any previous transcript.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	r.messages = nil
	r.startTime = r.now()
}

// AddUserMessage appends a final user utterance with its detected language.
func (r *Recorder) AddUserMessage(text, language string) {
	r.add(Message{Role: RoleUser, Text: text, Language: language})
}

// AddAssistantMessage appends an assistant reply.
func (r *Recorder) AddAssistantMessage(text string) {
	r.add(Message{Role: RoleAssistant, Text: text})
}

func (r *Recorder) add(msg Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	msg.Timestamp = r.now()
	r.messages = append(r.messages, msg)
}

// Path returns the output file location.
func (r *Recorder) Path() string { return r.path }

// Len reports how many messages have been captured so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Stop disarms the recorder and writes the transcript. An empty transcript
// writes nothing.
func (r *Recorder) Stop() (saved int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false

	if len(r.messages) == 0 {
		return 0, nil
	}

	end := r.now()
	doc := Recording{
		StartTime:       r.startTime,
		EndTime:         end,
		DurationSeconds: end.Sub(r.startTime).Seconds(),
		Messages:        r.messages,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal transcript: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", r.path, err)
	}
	return len(r.messages), nil
}

// FilePath builds the conventional timestamped transcript location, e.g.
// recordings/transcript_20250102_150405.json.
func FilePath(dir string, at time.Time) string {
	return filepath.Join(dir, "transcript_"+at.Format("20060102_150405")+".json")
}
