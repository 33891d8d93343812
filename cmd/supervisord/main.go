// Command supervisord runs the long-lived Tier 3/Tier 4 daemon: it listens
// on the supervisor Unix domain socket for cascade escalations, calls out to
// an LLM advisor for each one, and serves the admin HTTP API (human queue
// listing/reply, Prometheus metrics) alongside it.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"permgate/internal/adminapi"
	"permgate/internal/decision"
	"permgate/internal/humanqueue"
	"permgate/internal/llmadvisor"
	"permgate/internal/obslog"
	"permgate/internal/supervisor"
)

func main() {
	var (
		socketPath = flag.String("socket", envOr("PERMGATE_SOCKET", "/var/run/permgate/supervisor.sock"), "Unix domain socket to listen on")
		humanDir   = flag.String("human-dir", envOr("PERMGATE_HUMAN_DIR", "/var/lib/permgate/human"), "human queue root directory")
		adminAddr  = flag.String("admin-addr", envOr("PERMGATE_ADMIN_ADDR", ":8090"), "admin HTTP API listen address")
		apiKey     = flag.String("llm-api-key", os.Getenv("PERMGATE_LLM_API_KEY"), "LLM advisor API key")
		model      = flag.String("llm-model", envOr("PERMGATE_LLM_MODEL", "claude-3-5-sonnet-latest"), "LLM advisor model")
		jwtSecret  = flag.String("jwt-secret", os.Getenv("PERMGATE_ADMIN_JWT_SECRET"), "admin API bearer token signing secret")
	)
	flag.Parse()

	log := obslog.New("supervisord")

	queue, err := humanqueue.New(*humanDir)
	if err != nil {
		log.ErrorWithErr("", "open human queue", err, nil)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var handler supervisor.Handler
	if *apiKey == "" {
		log.Warn("", "PERMGATE_LLM_API_KEY not set, Tier 3 requests will be escalated directly to the human queue", nil)
		handler = supervisor.HandlerFunc(func(ctx context.Context, req supervisor.Request) supervisor.Response {
			return escalateToHuman(queue, req, log)
		})
	} else {
		provider, err := llmadvisor.NewProvider(llmadvisor.Config{APIKey: *apiKey, Model: *model})
		if err != nil {
			log.ErrorWithErr("", "build llm advisor", err, nil)
			os.Exit(1)
		}
		handler = supervisor.HandlerFunc(func(ctx context.Context, req supervisor.Request) supervisor.Response {
			return adviseOrEscalate(ctx, provider, queue, req, log)
		})
	}

	srv := supervisor.NewServer(*socketPath, handler)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			log.ErrorWithErr("", "supervisor socket server exited", err, nil)
		}
	}()

	admin := adminapi.New(queue, []byte(*jwtSecret))
	httpSrv := &http.Server{Addr: *adminAddr, Handler: admin.Router()}
	go func() {
		log.Warn("", "admin API listening", map[string]interface{}{"addr": *adminAddr})
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.ErrorWithErr("", "admin API server exited", err, nil)
		}
	}()

	<-ctx.Done()
	log.Warn("", "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// adviseOrEscalate calls the LLM advisor and falls back to the human queue
// if the call fails, per spec §4.F (Tier 3 failure escalates to Tier 4
// rather than defaulting to allow or deny).
func adviseOrEscalate(ctx context.Context, provider *llmadvisor.Provider, queue *humanqueue.Queue, req supervisor.Request, log *obslog.Logger) supervisor.Response {
	advice, err := provider.Advise(ctx, llmadvisor.AdviceRequest{
		ToolName:        req.ToolName,
		ToolInput:       req.ToolInput,
		Role:            req.Role,
		FilePath:        req.FilePath,
		TaskDescription: req.TaskDescription,
		Cwd:             req.Cwd,
	})
	if err != nil {
		log.ErrorWithErr(req.SessionID, "llm advisor call failed, escalating to human queue", err, nil)
		return escalateToHuman(queue, req, log)
	}
	return supervisor.Response{
		Verdict: advice.Verdict,
		Metadata: decision.Metadata{
			Tier:       decision.TierSupervisor,
			Confidence: advice.Confidence,
			Reason:     advice.Reason,
		},
	}
}

func escalateToHuman(queue *humanqueue.Queue, req supervisor.Request, log *obslog.Logger) supervisor.Response {
	pending := humanqueue.PendingDecision{
		Key: decision.CacheKey{
			SanitizedInput: req.ToolInput,
			Tool:           req.ToolName,
			Role:           req.Role,
		},
		Tool:         req.ToolName,
		Path:         req.FilePath,
		SessionID:    req.SessionID,
		ScopeCeiling: decision.ScopeUser,
		Reason:       "supervisor escalation: " + req.TaskDescription,
	}
	id, err := queue.Enqueue(pending)
	if err != nil {
		log.ErrorWithErr(req.SessionID, "enqueue human review", err, nil)
		return supervisor.Response{
			Verdict:  decision.Ask,
			Metadata: decision.Metadata{Tier: decision.TierHuman, Reason: "human queue unavailable, defaulting to ask"},
		}
	}
	return supervisor.Response{
		Verdict:  decision.Ask,
		Metadata: decision.Metadata{Tier: decision.TierHuman, Reason: "awaiting human review: " + id},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
