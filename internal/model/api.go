package model

import "time"

// Every HTTP response body is either {"data", "meta"} or {"error", "meta"}.

// APIResponse wraps a successful result.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError wraps a failure.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta echoes the request id and stamps the response time (UTC).
type ResponseMeta struct {
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail is a machine-readable code plus a human message. Details holds
// per-field validation failures when present.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes returned in ErrorDetail.Code.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// AgentSpec identifies a candidate agent in an evaluation request. When only
// AgentID is set the endpoint is resolved from the registry.
type AgentSpec struct {
	AgentID  string `json:"agentId" validate:"omitempty,max=128"`
	Name     string `json:"name" validate:"omitempty,max=200"`
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	APIKey   string `json:"apiKey,omitempty"`
}

// EvaluationRequest is the request body for POST /v1/evaluations.
type EvaluationRequest struct {
	Agent     AgentSpec `json:"agent" validate:"required"`
	Mode      string    `json:"mode" validate:"omitempty,oneof=public private full"`
	MultiTurn bool      `json:"multiTurn"`
}

// BenchmarkRequest is the request body for POST /v1/benchmarks.
type BenchmarkRequest struct {
	Agents    []AgentSpec `json:"agents" validate:"required,min=1,max=50,dive"`
	Mode      string      `json:"mode" validate:"omitempty,oneof=public private full"`
	MultiTurn bool        `json:"multiTurn"`
}
