package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edoardomanca/greta/internal/assets"
	"github.com/edoardomanca/greta/internal/audio"
	"github.com/edoardomanca/greta/internal/brain"
	"github.com/edoardomanca/greta/internal/calllog"
	"github.com/edoardomanca/greta/internal/config"
	"github.com/edoardomanca/greta/internal/httpapi"
	"github.com/edoardomanca/greta/internal/observability"
	"github.com/edoardomanca/greta/internal/room"
	"github.com/edoardomanca/greta/internal/tools"
)

func main() {
	root := &cobra.Command{
		Use:           "greta",
		Short:         "Greta voice assistant worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newConsoleCmd(),
		newDevCmd(),
		newStartCmd(),
		newDownloadFilesCmd(),
		newRecordingsCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatalf("greta: %v", err)
	}
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Talk to the assistant interactively on this terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			b, err := brain.New(cfg, tools.NewWeatherService())
			if err != nil {
				return err
			}
			return brain.RunREPL(cmd.Context(), b, os.Stdin, os.Stdout)
		},
	}
}

func newDevCmd() *cobra.Command {
	var roomName string
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the worker with relaxed origins for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequirePlatform(); err != nil {
				return err
			}
			cfg.AllowAnyOrigin = true
			return runServer(cmd.Context(), cfg, roomName)
		},
	}
	cmd.Flags().StringVar(&roomName, "room", "", "room to attach to at startup")
	return cmd
}

func newStartCmd() *cobra.Command {
	var roomName string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the worker in production mode",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequirePlatform(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, roomName)
		},
	}
	cmd.Flags().StringVar(&roomName, "room", "", "room to attach to at startup")
	return cmd
}

// runServer hosts the worker: the operational HTTP surface plus the room
// runtime. Calls are attached either at startup via --room or later through
// POST /v1/rooms/{name}/attach.
func runServer(ctx context.Context, cfg config.Config, roomName string) error {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := calllog.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("call log init: %w", err)
	}
	defer store.Close()

	var console httpapi.Conversationalist
	if cfg.OpenAIAPIKey != "" {
		b, err := brain.New(cfg, tools.NewWeatherService())
		if err != nil {
			return fmt.Errorf("console brain init: %w", err)
		}
		b.SetMetrics(metrics)
		console = b
	} else {
		log.Printf("OPENAI_API_KEY not set, console disabled")
	}

	rt := room.NewRuntime(cfg, store, metrics, log.Default())
	sc := rt.SessionConfig()
	log.Printf("session pipeline: stt=%s llm=%s tts=%s vad=%s turn_detection=%s",
		sc.STTModel, sc.LLMModel, sc.TTSModel, sc.VADModel, sc.TurnDetectionModel)
	log.Printf("attaching rooms with prefix %q as %s", cfg.RoomPrefix, cfg.AgentIdentity)
	defer rt.Detach(context.Background())

	if roomName != "" {
		if err := rt.Attach(ctx, roomName); err != nil {
			return fmt.Errorf("attach to room %s: %w", roomName, err)
		}
	}

	api := httpapi.New(cfg, store, console, rt, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigCh:
	}
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
	return nil
}

func newDownloadFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download-files",
		Short: "Prefetch local model files used by the voice pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			n, err := assets.NewDownloader(cfg.ModelsDir, log.Default()).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("downloaded %d file(s) into %s", n, cfg.ModelsDir)
			return nil
		},
	}
}

func newRecordingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "Work with saved call recordings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "combine <a.wav> <b.wav> <out.wav>",
		Short: "Mix two mono WAV recordings into one file",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := audio.Mixdown(args[0], args[1], args[2]); err != nil {
				return err
			}
			log.Printf("combined %s and %s into %s", args[0], args[1], args[2])
			return nil
		},
	})
	return cmd
}
