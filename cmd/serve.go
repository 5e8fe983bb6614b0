package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/inference"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := cfg.Server.Port

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type api struct {
	env *pipelineEnv
}

func newRouter(env *pipelineEnv, origins []string) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Post("/run", a.run)
	r.Post("/writer/stream", a.writerStream)
	r.Get("/prospects", a.listProspects)
	r.Get("/prospects/{id}", a.getProspect)
	r.Get("/handoff/{id}", a.getHandoff)
	r.Post("/reset", a.reset)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondStoreError maps store lookups to 404 or 500.
func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: store error", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK
	check := func(name string, err error, fatal bool) {
		if err == nil {
			checks[name] = "ok"
			return
		}
		checks[name] = err.Error()
		if fatal {
			status = http.StatusServiceUnavailable
		}
	}

	check("store", a.env.Store.Ping(ctx), true)
	check("embedder", inference.CheckEmbedder(ctx, a.env.Embedder), false)
	if _, disabled := a.env.Generator.(inference.Disabled); disabled {
		checks["llm"] = "disabled"
	} else {
		check("llm", inference.CheckGenerator(ctx, a.env.Generator), false)
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	respondJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

// ndjsonWriter writes one JSON value per line and flushes after each.
type ndjsonWriter struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	return &ndjsonWriter{w: w, enc: json.NewEncoder(w), flusher: f}
}

func (n *ndjsonWriter) Write(v any) error {
	if err := n.enc.Encode(v); err != nil {
		return err
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

func (a *api) run(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyIDs []string `json:"company_ids"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := newNDJSONWriter(w)
	for ev := range a.env.Pipeline.Run(ctx, req.CompanyIDs) {
		if err := out.Write(ev); err != nil {
			zap.L().Warn("api: client went away during run", zap.Error(err))
			cancel()
		}
	}
}

// writerChunk is the wire form of a Writer stream element.
type writerChunk struct {
	Type     string            `json:"type"`
	Token    string            `json:"token,omitempty"`
	Summary  string            `json:"summary,omitempty"`
	Draft    *model.EmailDraft `json:"email_draft,omitempty"`
	Fallback bool              `json:"fallback,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// writerStream drafts for a company as if it had just been scored, without
// persisting anything.
func (a *api) writerStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyID string `json:"company_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CompanyID == "" {
		respondError(w, http.StatusBadRequest, "company_id is required")
		return
	}

	ctx := r.Context()
	c, err := a.env.Store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	rec := model.NewRecord(c.ID, *c)
	if existing, err := a.env.Store.GetRecord(ctx, c.ID); err == nil {
		rec.Contacts = existing.Contacts
		rec.Facts = existing.Facts
		rec.FitScore = existing.FitScore
	}
	rec.Status = model.StatusScored

	out := newNDJSONWriter(w)
	for chunk := range a.env.Writer.Stream(ctx, rec) {
		wc := writerChunk{Type: chunk.Kind, Token: chunk.Text}
		if chunk.Done {
			wc = writerChunk{Type: "done", Fallback: chunk.Fallback}
			if chunk.Err != nil {
				wc.Error = chunk.Err.Error()
			} else {
				wc.Summary = chunk.Record.Summary
				wc.Draft = chunk.Record.Draft
			}
		}
		if err := out.Write(wc); err != nil {
			return
		}
	}
}

func (a *api) listProspects(w http.ResponseWriter, r *http.Request) {
	filter := store.RecordFilter{Status: model.Status(r.URL.Query().Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	records, err := a.env.Store.ListRecords(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"prospects": records, "count": len(records)})
}

func (a *api) getProspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	rec, err := a.env.Store.GetRecord(ctx, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	thread, err := a.env.Store.GetThread(ctx, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"prospect": rec, "thread": thread})
}

func (a *api) getHandoff(w http.ResponseWriter, r *http.Request) {
	h, err := loadHandoff(r.Context(), a.env.Store, chi.URLParam(r, "id"))
	if errors.Is(err, errNotReady) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h)
}

func (a *api) reset(w http.ResponseWriter, r *http.Request) {
	res, err := pipeline.Reset(r.Context(), a.env.Store, a.env.Source, a.env.Indexer())
	if err != nil {
		zap.L().Error("api: reset failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset", "companies": res.Companies, "indexed": res.Indexed, "live_cleared": res.LiveCleared})
}
