package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Recorder accumulates raw PCM16LE mono frames and saves them as a WAV file
// when stopped. The sample rate is latched from the first frame because
// tracks negotiate it at subscribe time, not before.
type Recorder struct {
	mu         sync.Mutex
	path       string
	frames     [][]byte
	sampleRate int
	recording  bool
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Start arms the recorder, discarding any frames from a previous run.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	r.frames = nil
	r.sampleRate = 0
}

// AddFrame appends one PCM frame. Frames arriving while the recorder is
// stopped are dropped.
func (r *Recorder) AddFrame(pcm []byte, sampleRate int) {
	if len(pcm) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	if r.sampleRate == 0 && sampleRate > 0 {
		r.sampleRate = sampleRate
	}
	frame := make([]byte, len(pcm))
	copy(frame, pcm)
	r.frames = append(r.frames, frame)
}

// Path returns the output file location.
func (r *Recorder) Path() string { return r.path }

// Recording reports whether the recorder is armed.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Stop disarms the recorder and writes the captured audio to disk. Stopping
// with no captured frames writes nothing and reports zero duration.
func (r *Recorder) Stop() (duration float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false

	if len(r.frames) == 0 {
		return 0, nil
	}

	var total int
	for _, f := range r.frames {
		total += len(f)
	}
	pcm := make([]byte, 0, total)
	for _, f := range r.frames {
		pcm = append(pcm, f...)
	}

	rate := r.sampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create recordings dir: %w", err)
		}
	}
	if err := WriteWAVPCM16LEFile(r.path, pcm, rate); err != nil {
		return 0, fmt.Errorf("write %s: %w", r.path, err)
	}

	// 16-bit mono.
	return float64(len(pcm)) / float64(rate*2), nil
}
