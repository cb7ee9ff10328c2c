package tool

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// SearchOutput is the payload of a knowledge-base search. An empty
// Results list means nothing matched; that is not an error.
type SearchOutput struct {
	Results []CatalogItem `json:"results"`
}

func searchKnowledgeBaseHandler(dataRoot string) Handler {
	return func(ctx context.Context, args map[string]any, profile *contractx.TenantProfile) contractx.ToolResult {
		if profile == nil {
			return contractx.ToolResult{
				Tool:  ToolSearchKnowledgeBase,
				Error: "tenant profile was not provided",
			}
		}

		path, err := ResolveUnderRoot(dataRoot, profile.KnowledgeBasePath)
		if err != nil {
			log.Error().Err(err).Str("tenant", profile.ID).Msg("knowledge base path rejected")
			return contractx.ToolResult{
				Tool:  ToolSearchKnowledgeBase,
				Error: "could not access the knowledge base",
			}
		}

		items, err := LoadCatalog(path)
		if err != nil {
			log.Error().Err(err).Str("tenant", profile.ID).Msg("knowledge base read failed")
			return contractx.ToolResult{
				Tool:  ToolSearchKnowledgeBase,
				Error: "could not access the knowledge base",
			}
		}

		term, _ := args["itemName"].(string)
		return contractx.ToolResult{
			Tool:   ToolSearchKnowledgeBase,
			Result: SearchOutput{Results: FilterCatalog(items, term)},
		}
	}
}
