package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"routecodex-hq/routecodex/pkg/bridge"
	"routecodex-hq/routecodex/pkg/kernel"
	"routecodex-hq/routecodex/pkg/modules"
	"routecodex-hq/routecodex/pkg/pipeline"
	"routecodex-hq/routecodex/pkg/profile"
	"routecodex-hq/routecodex/pkg/protocol"
	"routecodex-hq/routecodex/pkg/resources"
	"routecodex-hq/routecodex/pkg/routing"
)

// Error kinds visible to clients under details.kind.
const (
	KindValidation = "validation"
	KindRouting    = "routing"
	KindBinding    = "binding"
	KindInstance   = "instance"
	KindUpstream   = "upstream"
	KindAuth       = "auth"
	KindTool       = "tool"
	KindInternal   = "internal"
)

// statusClientClosed mirrors the nginx convention for a client that went
// away before the response could be written.
const statusClientClosed = 499

// ErrorEnvelope is the classified, client-facing form of a failure.
type ErrorEnvelope struct {
	Status      int
	Kind        string
	Code        string
	Message     string
	RequestID   string
	ProviderKey string
}

// Classify maps an error from any layer of the pipeline to its taxonomy
// kind, HTTP status, and stable code. Stage wrapping is transparent:
// errors.As walks through StageError to the cause.
func Classify(err error, requestID, providerKey string) *ErrorEnvelope {
	env := &ErrorEnvelope{
		Status:      http.StatusInternalServerError,
		Kind:        KindInternal,
		Code:        "internal_error",
		Message:     "internal error",
		RequestID:   requestID,
		ProviderKey: providerKey,
	}

	var (
		noMessages *modules.NoMessagesError
		toolErr    *bridge.ToolCallInvalidError
		noRoute    *routing.NoRouteError
		condFailed *routing.ConditionFailedError
		bindErr    *profile.BindingError
		instErr    *pipeline.InstanceError
		openErr    *resources.OpenError
		credErr    *kernel.CredentialError
		kernErr    *kernel.Error
	)
	switch {
	case errors.As(err, &noMessages):
		env.Status = http.StatusBadRequest
		env.Kind = KindValidation
		env.Code = "no_messages"
		env.Message = err.Error()
	case errors.As(err, &toolErr):
		env.Status = http.StatusUnprocessableEntity
		env.Kind = KindTool
		env.Code = "invalid_tool_call"
		env.Message = err.Error()
	case errors.As(err, &condFailed):
		env.Status = http.StatusBadRequest
		env.Kind = KindRouting
		env.Code = "condition_failed"
		env.Message = err.Error()
	case errors.As(err, &noRoute):
		env.Status = http.StatusNotFound
		env.Kind = KindRouting
		env.Code = "no_route"
		env.Message = err.Error()
	case errors.As(err, &bindErr):
		env.Kind = KindBinding
		env.Code = "binding_mismatch"
		env.Message = err.Error()
	case errors.As(err, &instErr):
		env.Status = http.StatusServiceUnavailable
		env.Kind = KindInstance
		env.Code = "instance_unavailable"
		env.Message = err.Error()
	case errors.As(err, &openErr):
		env.Status = http.StatusServiceUnavailable
		env.Kind = KindUpstream
		env.Code = "breaker_open"
		env.Message = err.Error()
	case errors.As(err, &credErr):
		env.Status = http.StatusServiceUnavailable
		env.Kind = KindAuth
		env.Code = "credential_error"
		env.Message = err.Error()
		if credErr.ProviderKey != "" {
			env.ProviderKey = credErr.ProviderKey
		}
	case errors.As(err, &kernErr):
		classifyKernel(kernErr, env)
	case errors.Is(err, context.DeadlineExceeded):
		env.Status = http.StatusGatewayTimeout
		env.Kind = KindUpstream
		env.Code = kernel.CodeTimeout
		env.Message = "request deadline exceeded"
	case errors.Is(err, context.Canceled):
		env.Status = statusClientClosed
		env.Kind = KindUpstream
		env.Code = kernel.CodeCancelled
		env.Message = "request cancelled"
	}
	return env
}

func classifyKernel(ke *kernel.Error, env *ErrorEnvelope) {
	env.Code = ke.Code
	env.Message = ke.Error()
	if ke.ProviderKey != "" {
		env.ProviderKey = ke.ProviderKey
	}

	switch ke.Code {
	case kernel.CodeAuthRejected, kernel.CodeTokenExpired:
		env.Kind = KindAuth
	default:
		env.Kind = KindUpstream
	}

	switch {
	case ke.StatusCode > 0:
		env.Status = ke.StatusCode
	case ke.Code == kernel.CodeTimeout:
		env.Status = http.StatusGatewayTimeout
	case ke.Code == kernel.CodeCancelled:
		env.Status = statusClientClosed
	default:
		env.Status = http.StatusBadGateway
	}
}

func (e *ErrorEnvelope) details() map[string]any {
	d := map[string]any{
		"requestId": e.RequestID,
		"kind":      e.Kind,
		"code":      e.Code,
	}
	if e.ProviderKey != "" {
		d["providerKey"] = e.ProviderKey
	}
	return d
}

// body renders the envelope in the client protocol's conventional shape.
func (e *ErrorEnvelope) body(clientFormat string) map[string]any {
	switch clientFormat {
	case protocol.AnthropicMessages:
		return map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    e.Kind + "_error",
				"message": e.Message,
				"details": e.details(),
			},
		}
	default:
		return map[string]any{
			"error": map[string]any{
				"message": e.Message,
				"type":    e.Kind + "_error",
				"code":    e.Code,
				"details": e.details(),
			},
		}
	}
}

// WriteJSON emits the envelope as a plain HTTP error response.
func (e *ErrorEnvelope) WriteJSON(w http.ResponseWriter, clientFormat string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.body(clientFormat))
}

// WriteSSE emits the envelope as an error frame on an open event stream.
// The caller closes the stream afterwards.
func (e *ErrorEnvelope) WriteSSE(w http.ResponseWriter, clientFormat string) {
	data, err := json.Marshal(e.body(clientFormat))
	if err != nil {
		return
	}
	_ = protocol.WriteSSE(w, protocol.SSEEvent{Event: "error", Data: string(data)})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
