// Package mcp provides tool definitions and the dispatch boundary for the
// Muninn MCP server. Transport and envelope handling live in the embedding
// server; this package defines the tools and maps their arguments onto
// manager operations.
package mcp

import (
	"encoding/json"
)

// GetToolDefinitions returns all MCP tool definitions with JSON schemas.
// These tools are designed for LLM-native usage with:
// - Verb-noun naming (clear intent)
// - Minimal required parameters
// - Smart defaults
// - Rich, actionable responses
func GetToolDefinitions() []Tool {
	return []Tool{
		getCreateEntitiesTool(),
		getCreateRelationsTool(),
		getAddObservationsTool(),
		getDeleteEntitiesTool(),
		getDeleteObservationsTool(),
		getDeleteRelationsTool(),
		getReadGraphTool(),
		getSearchNodesTool(),
		getSearchByTypeTool(),
		getOpenNodesTool(),
		getFindShortestPathTool(),
		getGetStatisticsTool(),
		getExportGraphTool(),
		getImportGraphTool(),
		getEntitySummaryTool(),
	}
}

var entitySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"name": map[string]interface{}{
			"type":        "string",
			"description": "Unique entity name; the identity key within the graph.",
		},
		"entityType": map[string]interface{}{
			"type":        "string",
			"description": "Entity type for categorization (e.g. person, project, concept).",
		},
		"observations": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Free-text observations attached to the entity.",
		},
	},
	"required": []string{"name", "entityType"},
}

var relationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"from": map[string]interface{}{
			"type":        "string",
			"description": "Source entity name.",
		},
		"to": map[string]interface{}{
			"type":        "string",
			"description": "Target entity name.",
		},
		"relationType": map[string]interface{}{
			"type":        "string",
			"description": "Relationship type in active voice (e.g. knows, contains).",
		},
	},
	"required": []string{"from", "to", "relationType"},
}

// getCreateEntitiesTool returns the create_entities tool definition
func getCreateEntitiesTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entities": map[string]interface{}{
				"type":        "array",
				"items":       entitySchema,
				"description": "Entities to create. Existing names are skipped, never overwritten.",
			},
		},
		"required": []string{"entities"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolCreateEntities,
		Description: `Create new entities in the knowledge graph. Entities whose name already
exists are skipped; the response lists only the entities actually created.

Examples:
- create_entities(entities=[{name:"Alice", entityType:"person", observations:["likes tea"]}])`,
		InputSchema: schemaJSON,
	}
}

// getCreateRelationsTool returns the create_relations tool definition
func getCreateRelationsTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"relations": map[string]interface{}{
				"type":        "array",
				"items":       relationSchema,
				"description": "Relations to create. Existing (from,to,relationType) triples are skipped.",
			},
		},
		"required": []string{"relations"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolCreateRelations,
		Description: `Create directed, typed relations between entities. Endpoints are not
required to exist yet; dangling references are permitted. Duplicate
triples are skipped.

Examples:
- create_relations(relations=[{from:"Alice", to:"Bob", relationType:"knows"}])`,
		InputSchema: schemaJSON,
	}
}

// getAddObservationsTool returns the add_observations tool definition
func getAddObservationsTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entityName": map[string]interface{}{
				"type":        "string",
				"description": "Name of the entity to extend.",
			},
			"contents": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Observations to append. Duplicates of existing observations are skipped.",
			},
		},
		"required": []string{"entityName", "contents"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolAddObservations,
		Description: `Append observations to an existing entity. Fails if the entity does not
exist. The response lists only the observations actually added.`,
		InputSchema: schemaJSON,
	}
}

// getDeleteEntitiesTool returns the delete_entities tool definition
func getDeleteEntitiesTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entityNames": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Names of entities to delete.",
			},
		},
		"required": []string{"entityNames"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolDeleteEntities,
		Description: `Delete entities by name. Every relation referencing a deleted entity on
either side is removed as well. Unknown names are ignored.`,
		InputSchema: schemaJSON,
	}
}

// getDeleteObservationsTool returns the delete_observations tool definition
func getDeleteObservationsTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entityName": map[string]interface{}{
				"type":        "string",
				"description": "Name of the entity to trim.",
			},
			"observations": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Observations to remove, matched exactly.",
			},
		},
		"required": []string{"entityName", "observations"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolDeleteObservations,
		Description: `Remove specific observations from an entity. Observations the entity does
not hold are ignored. Fails if the entity does not exist.`,
		InputSchema: schemaJSON,
	}
}

// getDeleteRelationsTool returns the delete_relations tool definition
func getDeleteRelationsTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"relations": map[string]interface{}{
				"type":        "array",
				"items":       relationSchema,
				"description": "Relations to delete, matched by exact (from,to,relationType) triple.",
			},
		},
		"required": []string{"relations"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolDeleteRelations,
		Description: `Delete relations matching the given triples exactly. Unknown triples are
ignored.`,
		InputSchema: schemaJSON,
	}
}

// getReadGraphTool returns the read_graph tool definition
func getReadGraphTool() Tool {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolReadGraph,
		Description: `Read the entire knowledge graph: all entities and relations. Served from
cache when the backing file is unchanged.`,
		InputSchema: schemaJSON,
	}
}

// getSearchNodesTool returns the search_nodes tool definition
func getSearchNodesTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search text matched case-insensitively against names, types, and observations.",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of entities per page.",
				"default":     50,
				"minimum":     1,
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Number of matches to skip before the page.",
				"default":     0,
				"minimum":     0,
			},
			"sortBy": map[string]interface{}{
				"type":        "string",
				"description": "Sort key. Omit to keep match order.",
				"enum":        []string{"name", "type", "createdAt", "updatedAt"},
			},
			"sortOrder": map[string]interface{}{
				"type":        "string",
				"description": "Sort direction.",
				"enum":        []string{"asc", "desc"},
				"default":     "asc",
			},
		},
		"required": []string{"query"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolSearchNodes,
		Description: `Search entities with pagination and stable sorting. Returns the matched
page, the relations touching any matched entity, and the total match count.

Examples:
- search_nodes(query="database", limit=10, sortBy="updatedAt", sortOrder="desc")`,
		InputSchema: schemaJSON,
	}
}

// getSearchByTypeTool returns the search_by_type tool definition
func getSearchByTypeTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"entityType": map[string]interface{}{
				"type":        "string",
				"description": "Exact entity type to filter by.",
			},
			"limit":     map[string]interface{}{"type": "integer", "default": 50, "minimum": 1},
			"offset":    map[string]interface{}{"type": "integer", "default": 0, "minimum": 0},
			"sortBy":    map[string]interface{}{"type": "string", "enum": []string{"name", "type", "createdAt", "updatedAt"}},
			"sortOrder": map[string]interface{}{"type": "string", "enum": []string{"asc", "desc"}, "default": "asc"},
		},
		"required": []string{"entityType"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolSearchByType,
		Description: `List entities of one exact type via the type index, with the same sorting
and pagination as search_nodes.`,
		InputSchema: schemaJSON,
	}
}

// getOpenNodesTool returns the open_nodes tool definition
func getOpenNodesTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"names": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Entity names to open. Unknown names are silently omitted.",
			},
		},
		"required": []string{"names"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolOpenNodes,
		Description: `Open specific entities by name, plus the relations among them. Result
order is not guaranteed to match the input order.`,
		InputSchema: schemaJSON,
	}
}

// getFindShortestPathTool returns the find_shortest_path tool definition
func getFindShortestPathTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"from": map[string]interface{}{"type": "string", "description": "Start entity name."},
			"to":   map[string]interface{}{"type": "string", "description": "End entity name."},
		},
		"required": []string{"from", "to"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolFindShortestPath,
		Description: `Find the shortest path between two entities, traversing relations in both
directions. Returns null when either entity is missing or no path exists.`,
		InputSchema: schemaJSON,
	}
}

// getGetStatisticsTool returns the get_statistics tool definition
func getGetStatisticsTool() Tool {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolGetStatistics,
		Description: `Graph statistics: totals, per-entity-type and per-relation-type counts,
average observations per entity, and the most recent update time.`,
		InputSchema: schemaJSON,
	}
}

// getExportGraphTool returns the export_graph tool definition
func getExportGraphTool() Tool {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolExportGraph,
		Description: `Export the whole graph wrapped as {exportedAt, version:"1.0", graph}.`,
		InputSchema: schemaJSON,
	}
}

// getImportGraphTool returns the import_graph tool definition
func getImportGraphTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":        "object",
				"description": "Graph payload with entities and relations arrays, or an export envelope.",
			},
		},
		"required": []string{"data"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolImportGraph,
		Description: `Replace the graph from an import payload. The top-level shape must carry
entities and relations arrays; individually malformed records are dropped
with a warning instead of failing the import.`,
		InputSchema: schemaJSON,
	}
}

// getEntitySummaryTool returns the get_entity_summary tool definition
func getEntitySummaryTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Entity name to summarize.",
			},
		},
		"required": []string{"name"},
	}

	schemaJSON, _ := json.Marshal(schema)
	return Tool{
		Name: ToolGetEntitySummary,
		Description: `Summarize one entity: the entity itself, its outgoing and incoming
relations, and the deduplicated related entities. Returns null for an
unknown entity.`,
		InputSchema: schemaJSON,
	}
}

// ToolName constants for type-safe tool references
const (
	ToolCreateEntities     = "create_entities"
	ToolCreateRelations    = "create_relations"
	ToolAddObservations    = "add_observations"
	ToolDeleteEntities     = "delete_entities"
	ToolDeleteObservations = "delete_observations"
	ToolDeleteRelations    = "delete_relations"
	ToolReadGraph          = "read_graph"
	ToolSearchNodes        = "search_nodes"
	ToolSearchByType       = "search_by_type"
	ToolOpenNodes          = "open_nodes"
	ToolFindShortestPath   = "find_shortest_path"
	ToolGetStatistics      = "get_statistics"
	ToolExportGraph        = "export_graph"
	ToolImportGraph        = "import_graph"
	ToolGetEntitySummary   = "get_entity_summary"
)

// AllTools returns all tool names
func AllTools() []string {
	return []string{
		ToolCreateEntities,
		ToolCreateRelations,
		ToolAddObservations,
		ToolDeleteEntities,
		ToolDeleteObservations,
		ToolDeleteRelations,
		ToolReadGraph,
		ToolSearchNodes,
		ToolSearchByType,
		ToolOpenNodes,
		ToolFindShortestPath,
		ToolGetStatistics,
		ToolExportGraph,
		ToolImportGraph,
		ToolGetEntitySummary,
	}
}

// IsValidTool checks if a tool name is valid
func IsValidTool(name string) bool {
	for _, t := range AllTools() {
		if t == name {
			return true
		}
	}
	return false
}

// InferOperation determines the operation class implied by a tool.
func InferOperation(tool string) string {
	switch tool {
	case ToolCreateEntities, ToolCreateRelations, ToolAddObservations, ToolImportGraph:
		return "create"
	case ToolDeleteEntities, ToolDeleteObservations, ToolDeleteRelations:
		return "delete"
	case ToolReadGraph, ToolSearchNodes, ToolSearchByType, ToolOpenNodes,
		ToolFindShortestPath, ToolGetStatistics, ToolExportGraph, ToolGetEntitySummary:
		return "read"
	default:
		return "unknown"
	}
}
