package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sifter/internal/audio"
	"sifter/internal/blobstore"
	"sifter/internal/config"
	"sifter/internal/db"
	"sifter/internal/errs"
	"sifter/internal/llm"
	"sifter/internal/orchestrator"
	"sifter/internal/queue"
	"sifter/internal/stage/analysis"
	"sifter/internal/stage/assembly"
	"sifter/internal/stage/curation"
	"sifter/internal/stage/orchestration"
	"sifter/internal/stage/transcription"
	"sifter/internal/stagectx"
	"sifter/internal/state"
	"sifter/internal/stt"
	"sifter/internal/tts"
)

// stageHandler is satisfied by every stage's Handler type.
type stageHandler interface {
	Handle(ctx context.Context, jc stagectx.Context) error
}

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(jsonHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := audio.Available(ctx); err != nil {
		slog.Error("ffmpeg/ffprobe not available", "error", err)
		os.Exit(1)
	}

	q, err := queue.New(ctx, config.RedisAddr)
	if err != nil {
		slog.Error("failed to connect to queue", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	store, err := db.Open(config.DatabaseURL)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	transcriber, err := stt.New(config.STTMode)
	if err != nil {
		slog.Error("failed to build transcriber", "error", err)
		os.Exit(1)
	}
	llmClient, err := llm.New(config.LLMProvider, config.DefaultLLMModel, config.AnthropicAPIKey, config.OpenAIAPIKey, config.LLMFallbackToOpenAI)
	if err != nil {
		slog.Error("failed to build llm client", "error", err)
		os.Exit(1)
	}
	synthesizer, err := tts.New(config.TTSProvider)
	if err != nil {
		slog.Error("failed to build synthesizer", "error", err)
		os.Exit(1)
	}
	blobStore, err := blobstore.New(ctx, blobstore.Config{
		Region:      config.BlobRegion,
		Bucket:      config.BlobBucket,
		EndpointURL: config.BlobEndpointURL,
		BaseURL:     config.BlobPublicBaseURL,
	})
	if err != nil {
		slog.Error("failed to build blob store", "error", err)
		os.Exit(1)
	}

	stateMgr, err := state.NewManager(ctx, config.RedisAddr)
	if err != nil {
		slog.Error("failed to connect digest cycle state store", "error", err)
		os.Exit(1)
	}

	curationHandler := &curation.Handler{Store: store, LLM: llmClient}
	assemblyHandler := &assembly.Handler{Store: store, LLM: llmClient, TTS: synthesizer, BlobStore: blobStore}
	orch := &orchestrator.Orchestrator{Store: store, Queue: q, Curation: curationHandler, Assembly: assemblyHandler, State: stateMgr}

	handlers := map[queue.Name]stageHandler{
		queue.Transcription: &transcription.Handler{Store: store, Transcriber: transcriber},
		queue.Analysis:      &analysis.Handler{Store: store, LLM: llmClient},
		queue.Curation:      curationHandler,
		queue.Assembly:      assemblyHandler,
		queue.Orchestrator:  &orchestration.Handler{Orchestrator: orch},
	}

	var wg sync.WaitGroup
	for name, handler := range handlers {
		wg.Add(1)
		go runQueueLoop(ctx, &wg, q, name, handler)
	}

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	slog.Info("worker started", "queues", len(handlers))

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
	slog.Info("worker exited gracefully")
}

func runQueueLoop(ctx context.Context, wg *sync.WaitGroup, q *queue.Queue, name queue.Name, handler stageHandler) {
	defer wg.Done()

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()
	promoteTicker := time.NewTicker(config.OrchestratorPollInterval)
	defer promoteTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			if err := q.CleanupExpired(ctx, name); err != nil {
				slog.Error("queue cleanup failed", "queue", name, "error", err)
			}
		case <-promoteTicker.C:
			if n, err := q.PromoteDueJobs(ctx, name); err != nil {
				slog.Error("promote due jobs failed", "queue", name, "error", err)
			} else if n > 0 {
				slog.Info("promoted delayed jobs", "queue", name, "count", n)
			}
		default:
			h, err := q.Dequeue(ctx, name)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("dequeue failed", "queue", name, "error", err)
				continue
			}
			if h == nil {
				continue
			}

			h.Log("processing job")
			if err := handler.Handle(ctx, h); err != nil {
				if failErr := h.Fail(ctx, errs.Retryable(err), err); failErr != nil {
					slog.Error("failed to record job failure", "queue", name, "error", failErr)
				}
				continue
			}
			if err := h.Complete(ctx); err != nil {
				slog.Error("failed to record job completion", "queue", name, "error", err)
			}
		}
	}
}
