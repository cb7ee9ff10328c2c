package contract

import "time"

type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformMessenger Platform = "messenger"
	PlatformSandbox   Platform = "sandbox"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleModel      Role = "model"
	RoleToolCall   Role = "tool_call"
	RoleToolResult Role = "tool_result"
)

// Turn is one atomic entry in a conversation history. Exactly one of
// Text, Call, or Result is populated depending on Role.
type Turn struct {
	Role   Role        `json:"role"`
	Text   string      `json:"text,omitempty"`
	Call   *ToolCall   `json:"call,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

func ModelTurn(text string) Turn {
	return Turn{Role: RoleModel, Text: text}
}

func CallTurn(call ToolCall) Turn {
	return Turn{Role: RoleToolCall, Call: &call}
}

func ResultTurn(result ToolResult) Turn {
	return Turn{Role: RoleToolResult, Result: &result}
}

// ToolCall is a tool invocation proposed by the model.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the structured outcome of a tool handler. A failed
// execution sets Error; it is still a valid result, not a Go error.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ToolDecl describes one tool a tenant exposes to the model.
type ToolDecl struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ToolParam `json:"parameters,omitempty"`
}

type ToolParam struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// CalendarAuth carries a tenant's stored Google OAuth tokens.
type CalendarAuth struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// ChannelBindings maps a tenant to its messaging-platform identities so
// inbound webhooks can be routed to the right profile.
type ChannelBindings struct {
	WhatsAppPhoneNumberID string `json:"whatsapp_phone_number_id,omitempty"`
	MessengerPageID       string `json:"messenger_page_id,omitempty"`
}

// TenantProfile is the static per-tenant configuration bundle. It is
// owned by the admin side; the conversation engine only borrows it for
// the duration of one call.
type TenantProfile struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	DefaultInstruction string          `json:"default_instruction"`
	Model              string          `json:"model"`
	Tools              []ToolDecl      `json:"tools,omitempty"`
	KnowledgeBasePath  string          `json:"knowledge_base_path,omitempty"`
	CalendarAuth       *CalendarAuth   `json:"calendar_auth,omitempty"`
	Timezone           string          `json:"timezone,omitempty"`
	Channels           ChannelBindings `json:"channels,omitempty"`
}

// Reply is the interpreted outcome of one model dispatch: either plain
// text or a structured tool invocation.
type Reply struct {
	Text string
	Call *ToolCall
}

// GenerateRequest is one model dispatch. When AllowTools is false the
// declarations are withheld so the backend must answer in plain text.
type GenerateRequest struct {
	Model      string
	Turns      []Turn
	Tools      []ToolDecl
	AllowTools bool
}
