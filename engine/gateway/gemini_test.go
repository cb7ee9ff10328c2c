package gateway

import (
	"errors"
	"testing"

	"google.golang.org/genai"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

func TestToContentsMapsRoles(t *testing.T) {
	t.Parallel()

	turns := []contractx.Turn{
		contractx.UserTurn("hola"),
		contractx.ModelTurn("hola!"),
		contractx.CallTurn(contractx.ToolCall{Name: "searchKnowledgeBase", Args: map[string]any{"itemName": "tacos"}}),
		contractx.ResultTurn(contractx.ToolResult{Tool: "searchKnowledgeBase", Result: map[string]any{"results": []string{}}}),
	}

	contents := toContents(turns)
	if len(contents) != 4 {
		t.Fatalf("len(contents) = %d, want 4", len(contents))
	}

	if contents[0].Role != genai.RoleUser || contents[0].Parts[0].Text != "hola" {
		t.Fatalf("unexpected user content: %+v", contents[0])
	}
	if contents[1].Role != genai.RoleModel {
		t.Fatalf("unexpected model role: %s", contents[1].Role)
	}

	call := contents[2]
	if call.Role != genai.RoleModel || call.Parts[0].FunctionCall == nil {
		t.Fatalf("tool call content = %+v, want a model-side FunctionCall", call)
	}
	if call.Parts[0].FunctionCall.Name != "searchKnowledgeBase" {
		t.Fatalf("function call name = %q", call.Parts[0].FunctionCall.Name)
	}

	result := contents[3]
	if result.Role != genai.RoleUser || result.Parts[0].FunctionResponse == nil {
		t.Fatalf("tool result content = %+v, want a user-side FunctionResponse", result)
	}
	if result.Parts[0].FunctionResponse.Name != "searchKnowledgeBase" {
		t.Fatalf("function response name = %q", result.Parts[0].FunctionResponse.Name)
	}
}

func TestToContentsSkipsMalformedToolTurns(t *testing.T) {
	t.Parallel()

	turns := []contractx.Turn{
		{Role: contractx.RoleToolCall},
		{Role: contractx.RoleToolResult},
		contractx.UserTurn("hola"),
	}
	contents := toContents(turns)
	if len(contents) != 1 {
		t.Fatalf("len(contents) = %d, want 1", len(contents))
	}
}

func TestResultPayload(t *testing.T) {
	t.Parallel()

	got := resultPayload(contractx.ToolResult{Tool: "x", Error: "boom"})
	if got["error"] != "boom" {
		t.Fatalf("error payload = %v", got)
	}

	got = resultPayload(contractx.ToolResult{Tool: "x", Result: map[string]any{"a": 1}})
	if got["a"] != 1 {
		t.Fatalf("map payload = %v", got)
	}

	got = resultPayload(contractx.ToolResult{Tool: "x", Result: "plain"})
	if got["result"] != "plain" {
		t.Fatalf("wrapped payload = %v", got)
	}
}

func TestToToolsBuildsDeclarations(t *testing.T) {
	t.Parallel()

	tools := toTools([]contractx.ToolDecl{{
		Name:        "scheduleAppointment",
		Description: "agenda una cita",
		Parameters: map[string]contractx.ToolParam{
			"dateTime":     {Type: "string", Description: "inicio", Required: true},
			"partySize":    {Type: "integer"},
			"confirmEmail": {Type: "boolean"},
		},
	}})

	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("unexpected tools shape: %+v", tools)
	}
	decl := tools[0].FunctionDeclarations[0]
	if decl.Name != "scheduleAppointment" {
		t.Fatalf("declaration name = %q", decl.Name)
	}
	if decl.Parameters.Type != genai.TypeObject {
		t.Fatalf("schema type = %v, want object", decl.Parameters.Type)
	}
	if decl.Parameters.Properties["partySize"].Type != genai.TypeInteger {
		t.Fatalf("partySize type = %v, want integer", decl.Parameters.Properties["partySize"].Type)
	}
	if len(decl.Parameters.Required) != 1 || decl.Parameters.Required[0] != "dateTime" {
		t.Fatalf("required = %v, want [dateTime]", decl.Parameters.Required)
	}
}

func TestSchemaTypeDefaultsToString(t *testing.T) {
	t.Parallel()

	if got := schemaType("NUMBER"); got != genai.TypeNumber {
		t.Fatalf("schemaType(NUMBER) = %v", got)
	}
	if got := schemaType("mystery"); got != genai.TypeString {
		t.Fatalf("schemaType(mystery) = %v, want string", got)
	}
}

func TestParseReplyFunctionCallWinsOverText(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{
					{Text: "Voy a buscar eso."},
					{FunctionCall: &genai.FunctionCall{Name: "searchKnowledgeBase"}},
				},
			},
		}},
	}

	reply, err := parseReply(resp)
	if err != nil {
		t.Fatalf("parseReply() error = %v", err)
	}
	if reply.Call == nil || reply.Call.Name != "searchKnowledgeBase" {
		t.Fatalf("reply = %+v, want the function call", reply)
	}
	if reply.Call.Args == nil {
		t.Fatal("call args must be defaulted to an empty map")
	}
}

func TestParseReplyConcatenatesTextParts(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{{Text: "Hola "}, {Text: "mundo"}},
			},
		}},
	}

	reply, err := parseReply(resp)
	if err != nil {
		t.Fatalf("parseReply() error = %v", err)
	}
	if reply.Text != "Hola mundo" {
		t.Fatalf("reply text = %q", reply.Text)
	}
}

func TestParseReplyEmptyResponse(t *testing.T) {
	t.Parallel()

	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "   "}}}}}},
	} {
		_, err := parseReply(resp)
		if !errors.Is(err, contractx.ErrEmptyReply) {
			t.Fatalf("parseReply(%+v) error = %v, want ErrEmptyReply", resp, err)
		}
	}
}
