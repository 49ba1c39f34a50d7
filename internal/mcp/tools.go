package mcp

// ToolDefinitions returns the MCP tool definitions for the memory worker.
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: "search",
			Description: "Semantic search over captured observations and session summaries. " +
				"Returns compact scored results; follow up with get_observations to fetch " +
				"full narratives for the ids you need.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query":   {Type: "string", Description: "Natural language search query"},
					"project": {Type: "string", Description: "Restrict to one project"},
					"type": {Type: "string", Description: "Restrict to one document type",
						Enum: []string{"observation", "session_summary", "user_prompt"}},
					"limit": {Type: "number", Description: "Maximum results to return (default 10)",
						Default: 10},
				},
				Required: []string{"query"},
			},
		},
		{
			Name: "timeline",
			Description: "Get chronological context around an observation — what was captured " +
				"before and after it in the same project. Useful for reconstructing the " +
				"sequence of events in a past session.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"anchor": {Type: "number", Description: "ID of the anchor observation"},
					"radius": {Type: "number", Description: "Observations on each side (default 5)",
						Default: 5},
				},
				Required: []string{"anchor"},
			},
		},
		{
			Name: "get_observations",
			Description: "Retrieve full observations by id. Use after search to pull complete " +
				"narratives, facts, and file lists. Accepts multiple ids for batch retrieval.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"ids": {Type: "array", Description: "Observation ids to retrieve",
						Items: &Items{Type: "number"}},
				},
				Required: []string{"ids"},
			},
		},
	}
}
