package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ObiAU/newsrag/internal/models"
)

const shutdownTimeout = 5 * time.Second

// Handle mounts an extra handler, such as the Telegram webhook, on the
// server. It must be called before Run.
func (a *Aggregator) Handle(pattern string, h http.Handler) {
	a.handlers[pattern] = h
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Aggregator) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.server = &http.Server{
		Addr:              ":" + a.config.ServerPort,
		Handler:           a.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := a.server
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	return a.shutdown(server)
}

// Routes returns the HTTP handler tree.
func (a *Aggregator) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/stats", a.statsHandler)
	mux.HandleFunc("/answer", a.answerHandler)
	for pattern, h := range a.handlers {
		mux.Handle(pattern, h)
	}
	return mux
}

func (a *Aggregator) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	states := make(map[string]string)
	healthy := true
	for name, err := range a.providers.Ready(ctx) {
		if err != nil {
			healthy = false
			states[name] = err.Error()
			continue
		}
		states[name] = "ready"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"models":    states,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *Aggregator) statsHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"running": a.isRunning()}
	if a.cache != nil {
		body["cache_stats"] = a.cache.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *Aggregator) answerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query, taskList := r.FormValue("q"), r.FormValue("task")
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Query string `json:"query"`
			Task  string `json:"task"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		query, taskList = req.Query, req.Task
	}

	query = strings.TrimSpace(query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	tasks, err := models.ParseTasks(taskList)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A request runs to completion even if the client goes away; the model
	// and fetch timeouts bound it.
	writeJSON(w, http.StatusOK, a.Answer(context.WithoutCancel(r.Context()), query, tasks))
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (a *Aggregator) isRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *Aggregator) shutdown(server *http.Server) error {
	a.logger.Info("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
