// Command orakled is the conversational engine's composition binary: it
// wires Text Storage, Vector Storage, the Semantic Matcher, the Skill
// Registry, the Memory Engine, Chat Memory, the Dispatch Middleware, and
// the Conversation Manager together, starts the Summary/Decay worker
// pool and the backup scheduler, and exposes the turn pipeline over a
// minimal NDJSON HTTP endpoint. Grounded on manifold's cmd/agentd/main.go
// for the overall "load config, build dependencies, serve" shape.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"orakle/internal/chatmemory"
	"orakle/internal/config"
	"orakle/internal/conversation"
	"orakle/internal/dispatch"
	"orakle/internal/events"
	"orakle/internal/events/audit"
	"orakle/internal/llmadapter"
	"orakle/internal/matcher"
	"orakle/internal/memory"
	"orakle/internal/observability"
	"orakle/internal/registry"
	"orakle/internal/templates"
	"orakle/internal/textstore"
	"orakle/internal/vectorstore"
	"orakle/internal/workers"
)

func main() {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("example.env")
	}

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.OTLP != "" {
		shutdown, err := observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			log.Warn().Err(err).Msg("orakled: otel init failed, continuing without tracing")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	httpClient := observability.NewHTTPClient(nil)

	pool, err := pgxpool.New(ctx, cfg.Database.ConnectionString)
	if err != nil {
		log.Fatal().Err(err).Msg("orakled: connect to postgres")
	}
	defer pool.Close()

	store := textstore.New(pool)
	if err := store.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("orakled: initialize text store schema")
	}

	vectors, err := vectorstore.New(cfg.VectorStore.DSN, cfg.VectorStore.Dimensions)
	if err != nil {
		log.Fatal().Err(err).Msg("orakled: connect to vector store")
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, cfg.VectorStore.MemoryCollName, cfg.VectorStore.MemoryMetric); err != nil {
		log.Fatal().Err(err).Msg("orakled: ensure memory collection")
	}

	llm, err := llmadapter.Build(ctx, *cfg, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("orakled: build llm provider")
	}

	embedCache := matcher.NewEmbeddingCache(cfg.Matcher.CacheTTL, cfg.Redis)
	sem := matcher.New(llm, embedCache)

	var mcpSource *registry.MCPSource
	if len(cfg.Registry.MCP) > 0 {
		mcpSource = registry.NewMCPSource(ctx, cfg.Registry.MCP)
	}
	skillCache := registry.NewCacheLayer(cfg.Registry.CacheTTL, cfg.Redis)
	reg := registry.New(cfg.Registry, httpClient, skillCache, mcpSource)

	var auditSink memory.AuditSink
	if cfg.Audit.ClickHouseDSN != "" {
		sink, err := audit.NewClickHouseSink(ctx, cfg.Audit.ClickHouseDSN)
		if err != nil {
			log.Warn().Err(err).Msg("orakled: clickhouse audit sink unavailable, continuing without it")
		} else {
			auditSink = sink
		}
	}

	memEngine := memory.New(store, vectors, llm, cfg.Memory, cfg.VectorStore.MemoryCollName, cfg.VectorStore.MemoryMetric, auditSink)
	chatLog := chatmemory.New(store)

	tmpl, err := templates.New(map[string]string{
		conversation.DefaultSystemTemplateName: conversation.DefaultSystemTemplate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("orakled: register templates")
	}

	disp := dispatch.New(sem, reg, llm, tmpl, cfg.Matcher.DefaultThreshold, cfg.Matcher.DefaultTopK, cfg.Registry.InvokeTimeout)

	summarySlot := workers.NewSummarySlot()
	summaryWorker := workers.NewSummaryWorker(llm, summarySlot, cfg.Conversation.SummaryBudgetFraction,
		func(ctx context.Context, contextID string) (string, error) {
			val, _, err := store.GetMetadata(ctx, contextID, "current_summary")
			return val, err
		})
	var decayLock *redis.Client
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("orakled: redis unreachable, decay passes won't be coalesced across replicas")
		} else {
			decayLock = client
			defer client.Close()
		}
	}
	decayWorker := workers.NewDecayWorker(memEngine, decayLock)
	pool2 := workers.NewPool(summaryWorker, decayWorker)
	if err := pool2.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("orakled: start worker pool")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pool2.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("orakled: worker pool shutdown")
		}
	}()

	backupStore, err := chatmemory.NewBackupStore(ctx, cfg.Backup)
	if err != nil {
		log.Warn().Err(err).Msg("orakled: backup store unavailable, continuing without durability snapshots")
	}
	scheduler := chatmemory.NewScheduler(backupStore, chatLog, cfg.Backup.Interval,
		store.ListActiveContexts,
		func(ctx context.Context, contextID string) (int, int, error) {
			memCount, err := store.CountMemories(ctx, contextID)
			if err != nil {
				return 0, 0, err
			}
			vecCount, err := vectors.Count(ctx, cfg.VectorStore.MemoryCollName)
			if err != nil {
				return 0, 0, err
			}
			return memCount, vecCount, nil
		})
	go scheduler.Run(ctx)

	manager := conversation.New(chatLog, store, memEngine, disp, llm, tmpl, pool2, cfg.Conversation, cfg.Memory, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/turn", turnHandler(manager))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Msg("orakled: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("orakled: server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("orakled: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// turnRequest is the minimal wire shape a client posts to start a turn.
// contextID is optional; an empty value mints a fresh one.
type turnRequest struct {
	ContextID string `json:"context_id"`
	Message   string `json:"message"`
}

// turnHandler streams one turn's NDJSON event sequence directly onto the
// response body as it's produced, matching §6's "NDJSON, one JSON object
// per line" wire format.
func turnHandler(manager *conversation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.ContextID == "" {
			req.ContextID = uuid.NewString()
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("X-Context-Id", req.ContextID)
		out := events.NewWriter(flushWriter{w})

		if err := manager.RunTurn(r.Context(), req.ContextID, req.Message, out); err != nil {
			log.Error().Err(err).Str("context", req.ContextID).Msg("orakled: turn failed")
		}
	}
}

// flushWriter flushes the underlying ResponseWriter after every write, so
// each NDJSON line reaches the client as it's produced instead of waiting
// for the handler to return.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}
