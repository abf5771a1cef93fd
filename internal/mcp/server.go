package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/service"
	"github.com/rs/zerolog"
)

const (
	serverName    = "Cognitive Mesh Memory"
	serverVersion = "1.0.0"
)

// Server implements the MCP server for the memory engine
type Server struct {
	svc       *service.Service
	logger    zerolog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server
func NewServer(svc *service.Service, logger zerolog.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger.With().Str("component", "mcp").Logger(),
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func arrayProp(itemType, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": itemType},
		"description": description,
	}
}

func metadataProp() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": map[string]interface{}{"type": "string"},
		"description":          "String key/value metadata",
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "store_memory",
		Description: "Store a new memory record. The content is embedded automatically when no embedding is given.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id":         prop("string", "Record id. Omit to have one generated."),
				"content":    prop("string", "The text to remember"),
				"embedding":  arrayProp("number", "Precomputed embedding vector. Optional."),
				"tags":       arrayProp("string", "Tags for categorization"),
				"importance": prop("number", "Importance in [0,1] (default: 0.5)"),
				"created_at": prop("string", "Creation time (ISO 8601). Defaults to now."),
				"metadata":   metadataProp(),
			},
			Required: []string{"content"},
		},
	}, s.handleStoreMemory)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_memory",
		Description: "Fetch a memory record by id without counting it as an access",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"id": prop("string", "Record id")},
			Required:   []string{"id"},
		},
	}, s.handleGetMemory)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "update_memory",
		Description: "Change fields of an existing memory record. Omitted fields are left unchanged.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id":         prop("string", "Record id"),
				"content":    prop("string", "Replacement content. The record is re-embedded."),
				"embedding":  arrayProp("number", "Replacement embedding vector"),
				"tags":       arrayProp("string", "Replacement tag list"),
				"importance": prop("number", "Replacement importance in [0,1]"),
				"metadata":   metadataProp(),
			},
			Required: []string{"id"},
		},
	}, s.handleUpdateMemory)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete a memory record",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"id": prop("string", "Record id")},
			Required:   []string{"id"},
		},
	}, s.handleDeleteMemory)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "recall",
		Description: "Recall memories ranked by a strategy: exact, fuzzy, semantic, temporal or hybrid. Use \"best\" to let the engine pick from recorded performance. For most recalls, only provide 'query_text'.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query_text":      prop("string", "Text to look for"),
				"query_embedding": arrayProp("number", "Query vector. Generated from query_text when omitted."),
				"strategy":        prop("string", "exact, fuzzy, semantic, temporal, hybrid or best (default: hybrid)"),
				"max_results":     prop("integer", "Maximum number of results to return (default: 10)"),
				"min_relevance":   prop("number", "Drop results scoring below this value, in [0,1]"),
				"after":           prop("string", "Only records created at or after this time (ISO 8601). Optional."),
				"before":          prop("string", "Only records created at or before this time (ISO 8601). Optional."),
			},
			Required: []string{},
		},
	}, s.handleRecall)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "recall_by_tags",
		Description: "Recall memories that share tags with the request, most matches first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tags":        arrayProp("string", "Tags to match (case-insensitive)"),
				"max_results": prop("integer", "Maximum number of results to return (default: 10)"),
			},
			Required: []string{"tags"},
		},
	}, s.handleRecallByTags)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "recall_recent",
		Description: "List the most recently accessed memories",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"count": prop("integer", "Number of records to return (default: 10)"),
			},
			Required: []string{},
		},
	}, s.handleRecallRecent)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "consolidate",
		Description: "Promote frequently used important memories and prune stale unused ones",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"access_count_threshold": prop("integer", "Minimum access count for promotion"),
				"importance_threshold":   prop("number", "Minimum importance for promotion"),
				"prune_age":              prop("string", "Age after which unused records are pruned, e.g. 30d or 720h"),
			},
			Required: []string{},
		},
	}, s.handleConsolidate)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "record_performance",
		Description: "Report how well a recall strategy did so future recalls can prefer it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"strategy":   prop("string", "exact, fuzzy, semantic, temporal or hybrid"),
				"relevance":  prop("number", "Observed relevance in [0,1]"),
				"latency_ms": prop("number", "Observed latency in milliseconds"),
				"was_hit":    prop("boolean", "Whether the recall produced a useful result"),
			},
			Required: []string{"strategy", "relevance", "latency_ms", "was_hit"},
		},
	}, s.handleRecordPerformance)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "best_strategy",
		Description: "Return the recall strategy with the best recorded performance",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
			Required:   []string{},
		},
	}, s.handleBestStrategy)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "statistics",
		Description: "Record counts, average importance and per-strategy performance",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
			Required:   []string{},
		},
	}, s.handleStatistics)
}

// Tool handlers

// parseParams converts MCP request arguments to a struct
func parseParams(args interface{}, target interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func textResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func invalidParams(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("invalid parameters: %v", err))
}

type idParams struct {
	ID string `json:"id"`
}

func (s *Server) handleStoreMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params service.StoreInput
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	rec, embedded, err := s.svc.Store(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store memory: %v", err)), nil
	}

	return textResult(map[string]interface{}{
		"success":  true,
		"id":       rec.ID,
		"embedded": embedded,
		"message":  "Memory stored successfully",
	})
}

func (s *Server) handleGetMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params idParams
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	rec, err := s.svc.Get(ctx, params.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get memory: %v", err)), nil
	}
	return textResult(rec)
}

func (s *Server) handleUpdateMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		idParams
		service.UpdateInput
	}
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	rec, err := s.svc.Update(ctx, params.ID, params.UpdateInput)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update memory: %v", err)), nil
	}

	return textResult(map[string]interface{}{
		"success": true,
		"memory":  rec,
	})
}

func (s *Server) handleDeleteMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params idParams
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	if !s.svc.Delete(ctx, params.ID) {
		return mcp.NewToolResultError(fmt.Sprintf("memory %q not found", params.ID)), nil
	}
	return textResult(map[string]interface{}{
		"success": true,
		"id":      params.ID,
	})
}

func (s *Server) handleRecall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params service.RecallInput
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	res, err := s.svc.Recall(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}

	s.logger.Debug().
		Str("strategy", string(res.Strategy)).
		Int("results", len(res.Records)).
		Msg("recall served")

	return textResult(map[string]interface{}{
		"records":          res.Records,
		"scores":           res.Scores,
		"strategy":         res.Strategy,
		"duration_ms":      float64(res.Duration.Microseconds()) / 1000,
		"total_candidates": res.TotalCandidates,
	})
}

func (s *Server) handleRecallByTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Tags       []string `json:"tags"`
		MaxResults int      `json:"max_results"`
	}
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	recs, err := s.svc.RecallByTags(ctx, params.Tags, params.MaxResults)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall by tags failed: %v", err)), nil
	}
	return textResult(recs)
}

func (s *Server) handleRecallRecent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := struct {
		Count int `json:"count"`
	}{Count: models.DefaultMaxResults}
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}
	return textResult(s.svc.RecallRecent(ctx, params.Count))
}

func (s *Server) handleConsolidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params service.ConsolidateInput
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	res, err := s.svc.Consolidate(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("consolidation failed: %v", err)), nil
	}

	return textResult(map[string]interface{}{
		"promoted":    res.Promoted,
		"pruned":      res.Pruned,
		"retained":    res.Retained,
		"duration_ms": float64(res.Duration.Microseconds()) / 1000,
	})
}

func (s *Server) handleRecordPerformance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Strategy string `json:"strategy"`
		service.PerformanceInput
	}
	if err := parseParams(request.Params.Arguments, &params); err != nil {
		return invalidParams(err), nil
	}

	perf, err := s.svc.RecordPerformance(ctx, params.Strategy, params.PerformanceInput)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record performance: %v", err)), nil
	}
	return textResult(perf)
}

func (s *Server) handleBestStrategy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(map[string]interface{}{
		"strategy": s.svc.BestStrategy(ctx),
	})
}

func (s *Server) handleStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(s.svc.Statistics(ctx))
}

// Serve starts the MCP server with stdio transport
func (s *Server) Serve() error {
	s.logger.Info().Str("transport", "stdio").Msg("Starting MCP server")
	return server.ServeStdio(s.mcpServer)
}

// GetMCPServer returns the underlying MCP server for use with other transports (e.g., SSE)
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
