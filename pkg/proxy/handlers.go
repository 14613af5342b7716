package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/protocol"
	"routecodex-hq/routecodex/pkg/proxy/middleware"
	"routecodex-hq/routecodex/pkg/telemetry/metrics"
)

// maxBodyBytes bounds inbound payload size.
const maxBodyBytes = 32 << 20

// Handler serves the ingress endpoints. The metrics collector is optional.
type Handler struct {
	connector *pipeline.Connector
	pool      *pipeline.Pool
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewHandler wires the ingress endpoints to the pipeline runtime.
func NewHandler(connector *pipeline.Connector, pool *pipeline.Pool, collector *metrics.Collector) *Handler {
	return &Handler{
		connector: connector,
		pool:      pool,
		collector: collector,
		logger:    slog.Default().With("component", "proxy"),
	}
}

// Mux registers the API surface.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", h.completion(protocol.OpenAIChat))
	mux.HandleFunc("POST /v1/responses", h.completion(protocol.OpenAIResponses))
	mux.HandleFunc("POST /v1/messages", h.completion(protocol.AnthropicMessages))
	mux.HandleFunc("GET /health", h.health)
	if h.collector != nil {
		mux.Handle("GET /metrics", h.collector.Handler())
	}
	return mux
}

func (h *Handler) completion(clientFormat string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetRequestID(r.Context())

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			env := &ErrorEnvelope{
				Status: http.StatusBadRequest, Kind: KindValidation,
				Code: "read_failed", Message: "failed to read request body",
				RequestID: requestID,
			}
			env.WriteJSON(w, clientFormat)
			return
		}

		p, envErr := buildPayload(r, requestID, clientFormat, body)
		if envErr != nil {
			envErr.WriteJSON(w, clientFormat)
			return
		}

		if err := h.connector.Handle(r.Context(), p); err != nil {
			env := Classify(err, requestID, p.ProviderKey)
			h.logger.Error("request failed",
				"request_id", requestID,
				"kind", env.Kind,
				"code", env.Code,
				"provider", env.ProviderKey,
				"error", err,
			)
			h.observe(p, env.Status, start)
			if env.Kind == KindUpstream || env.Kind == KindAuth {
				h.countUpstream(env)
			}
			env.WriteJSON(w, clientFormat)
			return
		}

		if p.Stream && p.Upstream != nil {
			h.streamResponse(w, r, p)
			h.observe(p, http.StatusOK, start)
			return
		}
		h.writeResult(w, p, requestID, clientFormat)
		h.observe(p, http.StatusOK, start)
	}
}

func (h *Handler) writeResult(w http.ResponseWriter, p *pipeline.Payload, requestID, clientFormat string) {
	body := p.ClientResult
	if body == nil && p.Result != nil {
		var err error
		body, err = json.Marshal(p.Result)
		if err != nil {
			env := &ErrorEnvelope{
				Status: http.StatusInternalServerError, Kind: KindInternal,
				Code: "encode_failed", Message: "failed to encode response",
				RequestID: requestID, ProviderKey: p.ProviderKey,
			}
			env.WriteJSON(w, clientFormat)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// streamResponse forwards upstream SSE frames in order. Client disconnect
// cancels the request context, which aborts the upstream read; the chain's
// teardown has already been deferred by the connector.
func (h *Handler) streamResponse(w http.ResponseWriter, r *http.Request, p *pipeline.Payload) {
	defer p.Upstream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	err := protocol.ScanSSE(p.Upstream, func(ev protocol.SSEEvent) error {
		select {
		case <-r.Context().Done():
			return r.Context().Err()
		default:
		}
		if err := protocol.WriteSSE(w, ev); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		env := Classify(err, p.RequestID, p.ProviderKey)
		env.WriteSSE(w, p.ClientFormat)
		h.logger.Warn("stream aborted",
			"request_id", p.RequestID,
			"provider", p.ProviderKey,
			"error", err,
		)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	pipelineReady := h.pool.Ready()
	status := "ok"
	if !pipelineReady {
		status = "initializing"
	}
	w.Header().Set("Content-Type", "application/json")
	if !pipelineReady {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":         pipelineReady,
		"pipelineReady": pipelineReady,
		"status":        status,
	})
}

func (h *Handler) observe(p *pipeline.Payload, status int, start time.Time) {
	if h.collector == nil {
		return
	}
	h.collector.ObserveRequest(p.ProviderKey, p.Category, strconv.Itoa(status), time.Since(start))
}

func (h *Handler) countUpstream(env *ErrorEnvelope) {
	if h.collector == nil {
		return
	}
	h.collector.CountUpstreamError(env.ProviderKey, env.Code)
}
