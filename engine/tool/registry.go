package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// Canonical tool names. Tenants declare these in their profile; a
// declared name with no registered handler resolves to the structured
// unknown-function error, never a crash.
const (
	ToolSearchKnowledgeBase = "searchKnowledgeBase"
	ToolScheduleAppointment = "scheduleAppointment"
	ToolCheckAvailability   = "checkAvailability"
)

// Handler executes one tool invocation for a tenant. Handlers must
// tolerate partially populated or malformed args and report problems
// through ToolResult.Error.
type Handler func(ctx context.Context, args map[string]any, profile *contractx.TenantProfile) contractx.ToolResult

// Config holds registry-wide settings.
type Config struct {
	// DataRoot confines tenant knowledge-base paths; resolution
	// outside it is rejected.
	DataRoot string `split_words:"true" default:"./data"`
}

// Registry maps tool names to handlers.
type Registry struct {
	handlers map[string]Handler
}

var _ contractx.ToolExecutor = (*Registry)(nil)

// NewRegistry builds a registry with the built-in handlers. A nil
// calendar leaves the scheduling tools registered but failing with a
// structured "not connected" error.
func NewRegistry(cfg Config, cal Calendar) *Registry {
	r := &Registry{handlers: make(map[string]Handler, 4)}
	r.Register(ToolSearchKnowledgeBase, searchKnowledgeBaseHandler(cfg.DataRoot))
	r.Register(ToolScheduleAppointment, scheduleAppointmentHandler(cal))
	r.Register(ToolCheckAvailability, checkAvailabilityHandler(cal))
	return r
}

func (r *Registry) Register(name string, h Handler) {
	name = strings.TrimSpace(name)
	if name == "" || h == nil {
		return
	}
	r.handlers[name] = h
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Execute runs the named tool. Unknown names produce the structured
// unknown-function result so the model can explain the failure.
func (r *Registry) Execute(ctx context.Context, call contractx.ToolCall, profile *contractx.TenantProfile) contractx.ToolResult {
	handler, ok := r.handlers[call.Name]
	if !ok {
		log.Warn().Str("tool", call.Name).Msg("model requested a tool with no registered handler")
		return contractx.ToolResult{
			Tool:  call.Name,
			Error: fmt.Sprintf("unknown function: %s", call.Name),
		}
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return handler(ctx, args, profile)
}
