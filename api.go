package ocppgw

import (
	"context"
)

// API is the complete inbound surface the transport layer calls: one entry
// point per message kind and encoding, plus lifecycle and telemetry.
type API interface {
	ProcessJSONRequest(ctx context.Context, req *RequestMessage, conn Connection) error
	ProcessJSONResponse(ctx context.Context, resp *ResponseMessage, conn Connection) error
	ProcessJSONRequestError(ctx context.Context, em *ErrorMessage, conn Connection) error
	ProcessJSONResponseError(ctx context.Context, em *ErrorMessage, conn Connection) error
	ProcessJSONSendMessage(ctx context.Context, sm *SendMessage, conn Connection) error
	ProcessBinaryRequest(ctx context.Context, req *RequestMessage, conn Connection) error
	ProcessBinaryResponse(ctx context.Context, resp *ResponseMessage, conn Connection) error
	ProcessBinaryRequestError(ctx context.Context, em *ErrorMessage, conn Connection) error
	ProcessBinaryResponseError(ctx context.Context, em *ErrorMessage, conn Connection) error
	ProcessBinarySendMessage(ctx context.Context, sm *SendMessage, conn Connection) error

	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

var (
	_ API           = (*Router)(nil)
	_ HealthChecker = (*Router)(nil)
)
