// Package api exposes the batch pipeline over HTTP: synchronous single-lead
// and batch qualification plus an asynchronous webhook flow. The handlers are
// thin transport wrappers; all behavior lives in the agent package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"prospector/internal/agent"
	"prospector/internal/types"
)

// BatchProcessor runs one batch of leads. Implemented by *agent.Agent.
type BatchProcessor interface {
	ProcessLeads(ctx context.Context, leads []types.Lead, cb agent.TaskCallback) (types.BatchResult, error)
}

// Server is the HTTP service layer.
type Server struct {
	processor BatchProcessor
	logger    *zap.Logger
	http      *http.Server

	webhookClient *http.Client
	webhooks      sync.WaitGroup
}

// NewServer builds the server on the given address.
func NewServer(addr string, processor BatchProcessor, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		processor:     processor,
		logger:        logger,
		webhookClient: &http.Client{Timeout: 30 * time.Second},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /qualify", s.handleQualify)
	mux.HandleFunc("POST /qualify/batch", s.handleQualifyBatch)
	mux.HandleFunc("POST /webhook/qualify", s.handleWebhookQualify)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, mostly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api server listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and waits for pending webhook
// deliveries.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.webhooks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// leadInput is the wire shape for one lead.
type leadInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LinkedInURL string `json:"linkedin_url"`
	CompanyName string `json:"company_name"`
	Title       string `json:"title"`
}

func (in leadInput) toLead() (types.Lead, error) {
	if in.Name == "" {
		return types.Lead{}, fmt.Errorf("name is required")
	}
	id := in.ID
	if id == "" {
		id = "lead_" + uuid.New().String()[:8]
	}
	return types.Lead{
		ID:          id,
		Name:        in.Name,
		LinkedInURL: in.LinkedInURL,
		CompanyName: in.CompanyName,
		Title:       in.Title,
	}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQualify processes a single lead synchronously.
func (s *Server) handleQualify(w http.ResponseWriter, r *http.Request) {
	var in leadInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	lead, err := in.toLead()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := s.processor.ProcessLeads(r.Context(), []types.Lead{lead}, agent.TaskCallback{})
	if err != nil {
		s.logger.Error("qualification failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "qualification failed")
		return
	}
	if len(batch.Leads) != 1 {
		writeError(w, http.StatusInternalServerError, "no result produced")
		return
	}
	writeJSON(w, http.StatusOK, batch.Leads[0])
}

// handleQualifyBatch processes a list of leads synchronously.
func (s *Server) handleQualifyBatch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Leads []leadInput `json:"leads"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(in.Leads) == 0 {
		writeError(w, http.StatusBadRequest, "leads is required")
		return
	}

	leads := make([]types.Lead, 0, len(in.Leads))
	for i, li := range in.Leads {
		lead, err := li.toLead()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("lead %d: %v", i, err))
			return
		}
		leads = append(leads, lead)
	}

	batch, err := s.processor.ProcessLeads(r.Context(), leads, agent.TaskCallback{})
	if err != nil {
		s.logger.Error("batch qualification failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "batch qualification failed")
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// handleWebhookQualify accepts a lead, returns immediately, and delivers the
// result to the caller's webhook when processing finishes.
func (s *Server) handleWebhookQualify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		leadInput
		WebhookURL string `json:"webhook_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.WebhookURL == "" {
		writeError(w, http.StatusBadRequest, "webhook_url is required")
		return
	}
	lead, err := in.toLead()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.webhooks.Add(1)
	go func() {
		defer s.webhooks.Done()
		// Detached from the request context: the caller already got 202.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		s.processAndDeliver(ctx, lead, in.WebhookURL)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"lead_id": lead.ID,
	})
}

func (s *Server) processAndDeliver(ctx context.Context, lead types.Lead, webhookURL string) {
	batch, err := s.processor.ProcessLeads(ctx, []types.Lead{lead}, agent.TaskCallback{})

	var payload any
	if err != nil || len(batch.Leads) == 0 {
		s.logger.Error("webhook qualification failed", zap.String("lead", lead.ID), zap.Error(err))
		payload = map[string]string{"lead_id": lead.ID, "error": "qualification failed"}
	} else {
		payload = batch.Leads[0]
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal webhook payload", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.webhookClient.Do(req)
	if err != nil {
		s.logger.Error("webhook delivery failed", zap.String("url", webhookURL), zap.Error(err))
		return
	}
	resp.Body.Close()
	s.logger.Info("webhook delivered",
		zap.String("lead", lead.ID),
		zap.Int("status", resp.StatusCode))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
