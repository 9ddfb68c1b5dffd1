// Package assets prefetches the local model files the voice pipeline needs
// at startup, so a deploy can warm them ahead of the first call.
package assets

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Asset is one downloadable model file.
type Asset struct {
	Name string
	URL  string
}

// DefaultAssets lists the voice-activity and turn-detection model files used
// by the session pipeline.
var DefaultAssets = []Asset{
	{
		Name: "silero_vad.onnx",
		URL:  "https://huggingface.co/onnx-community/silero-vad/resolve/main/onnx/model.onnx",
	},
	{
		Name: "turn_detector.onnx",
		URL:  "https://huggingface.co/livekit/turn-detector/resolve/main/onnx/model_q8.onnx",
	},
	{
		Name: "turn_detector_tokenizer.json",
		URL:  "https://huggingface.co/livekit/turn-detector/resolve/main/tokenizer.json",
	},
}

// Downloader fetches assets into a local directory, skipping files that are
// already present. Failures are logged and do not stop the remaining
// downloads.
type Downloader struct {
	dir    string
	client *http.Client
	logger *log.Logger
	assets []Asset
}

type Option func(*Downloader)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.client = c }
}

func WithAssets(assets []Asset) Option {
	return func(d *Downloader) { d.assets = assets }
}

func NewDownloader(dir string, logger *log.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = log.Default()
	}
	d := &Downloader{
		dir:    dir,
		client: &http.Client{Timeout: 5 * time.Minute},
		logger: logger,
		assets: DefaultAssets,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads every configured asset. It returns the number fetched and
// an error only when none of the missing assets could be retrieved.
func (d *Downloader) Fetch(ctx context.Context) (int, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create models dir: %w", err)
	}

	var fetched, failed int
	for _, asset := range d.assets {
		dest := filepath.Join(d.dir, asset.Name)
		if _, err := os.Stat(dest); err == nil {
			d.logger.Printf("assets: %s already present, skipping", asset.Name)
			continue
		}

		if err := d.fetchOne(ctx, asset, dest); err != nil {
			d.logger.Printf("assets: %s: %v", asset.Name, err)
			failed++
			continue
		}
		d.logger.Printf("assets: downloaded %s", asset.Name)
		fetched++
	}

	if failed > 0 && fetched == 0 {
		return 0, fmt.Errorf("all %d downloads failed", failed)
	}
	return fetched, nil
}

func (d *Downloader) fetchOne(ctx context.Context, asset Asset, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	// Write to a temp file first so a truncated download never shadows a
	// later retry as "already present".
	tmp, err := os.CreateTemp(d.dir, asset.Name+".part-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
