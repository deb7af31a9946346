package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muninndb/muninn/pkg/muninn"
	"github.com/muninndb/muninn/pkg/storage"
)

// Tool is an MCP tool definition: name, LLM-facing description, and a JSON
// schema for its input object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// UsageRecorder receives one callback per dispatched tool call, after the
// operation finishes. Hook analytics or metrics here; a nil recorder is
// skipped.
type UsageRecorder func(tool string, elapsed time.Duration, err error)

// Dispatcher routes validated MCP tool calls to manager operations. It
// assumes the transport has already checked the tool name against
// IsValidTool and parsed the arguments into a JSON object.
type Dispatcher struct {
	manager *muninn.Manager
	record  UsageRecorder
	log     *zap.Logger
}

// NewDispatcher wires a dispatcher to a manager. recorder may be nil.
func NewDispatcher(manager *muninn.Manager, recorder UsageRecorder, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{manager: manager, record: recorder, log: log}
}

type createEntitiesArgs struct {
	Entities []storage.Entity `json:"entities"`
}

type createRelationsArgs struct {
	Relations []storage.Relation `json:"relations"`
}

type addObservationsArgs struct {
	EntityName string   `json:"entityName"`
	Contents   []string `json:"contents"`
}

type deleteEntitiesArgs struct {
	EntityNames []string `json:"entityNames"`
}

type deleteObservationsArgs struct {
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}

type deleteRelationsArgs struct {
	Relations []storage.Relation `json:"relations"`
}

type searchNodesArgs struct {
	Query string `json:"query"`
	muninn.SearchOptions
}

type searchByTypeArgs struct {
	EntityType string `json:"entityType"`
	muninn.SearchOptions
}

type openNodesArgs struct {
	Names []string `json:"names"`
}

type findShortestPathArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type importGraphArgs struct {
	Data json.RawMessage `json:"data"`
}

type entitySummaryArgs struct {
	Name string `json:"name"`
}

// Dispatch executes one tool call and returns its result as a JSON-ready
// value. Unknown tools and malformed argument payloads return an error;
// lookup misses inside operations return null results, not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, tool string, args json.RawMessage) (any, error) {
	start := time.Now()
	result, err := d.dispatch(ctx, tool, args)
	elapsed := time.Since(start)

	if d.record != nil {
		d.record(tool, elapsed, err)
	}
	if err != nil {
		d.log.Warn("tool call failed",
			zap.String("tool", tool),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		d.log.Debug("tool call completed",
			zap.String("tool", tool),
			zap.Duration("elapsed", elapsed))
	}
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, tool string, args json.RawMessage) (any, error) {
	switch tool {
	case ToolCreateEntities:
		var a createEntitiesArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.CreateEntities(ctx, a.Entities)

	case ToolCreateRelations:
		var a createRelationsArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.CreateRelations(ctx, a.Relations)

	case ToolAddObservations:
		var a addObservationsArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.AddObservations(ctx, a.EntityName, a.Contents)

	case ToolDeleteEntities:
		var a deleteEntitiesArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, d.manager.DeleteEntities(ctx, a.EntityNames)

	case ToolDeleteObservations:
		var a deleteObservationsArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, d.manager.DeleteObservations(ctx, a.EntityName, a.Observations)

	case ToolDeleteRelations:
		var a deleteRelationsArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, d.manager.DeleteRelations(ctx, a.Relations)

	case ToolReadGraph:
		return d.manager.ReadGraph(ctx)

	case ToolSearchNodes:
		var a searchNodesArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.SearchNodes(ctx, a.Query, a.SearchOptions)

	case ToolSearchByType:
		var a searchByTypeArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.SearchByType(ctx, a.EntityType, a.SearchOptions)

	case ToolOpenNodes:
		var a openNodesArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.OpenNodes(ctx, a.Names)

	case ToolFindShortestPath:
		var a findShortestPathArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.FindShortestPath(ctx, a.From, a.To)

	case ToolGetStatistics:
		return d.manager.GetGraphStatistics(ctx)

	case ToolExportGraph:
		return d.manager.ExportGraph(ctx)

	case ToolImportGraph:
		var a importGraphArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return nil, d.manager.ImportGraph(ctx, a.Data)

	case ToolGetEntitySummary:
		var a entitySummaryArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return d.manager.GetEntitySummary(ctx, a.Name)

	default:
		return nil, fmt.Errorf("mcp: unknown tool %q", tool)
	}
}

func decodeArgs(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("mcp: invalid arguments: %w", err)
	}
	return nil
}
