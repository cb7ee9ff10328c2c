package contract

import "context"

// ModelGateway wraps one request/response cycle against the generative
// backend.
type ModelGateway interface {
	Generate(ctx context.Context, req GenerateRequest) (Reply, error)
}

// ToolExecutor resolves and runs a tool invocation. Implementations
// must return a structured error result for unknown or failing tools,
// never a Go error, so a bad invocation cannot fail the whole turn.
type ToolExecutor interface {
	Execute(ctx context.Context, call ToolCall, profile *TenantProfile) ToolResult
}
