package api

import (
	"net/http"
	"strconv"

	"github.com/phoenixvc/cognitive-mesh-sub011/internal/models"
	"github.com/samber/lo"
)

type object = map[string]interface{}

func ref(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func response(description string, schema object) object {
	r := object{"description": description}
	if schema != nil {
		r["content"] = jsonContent(schema)
	}
	return r
}

func operation(id, summary string, body object, ok object, errs ...string) object {
	op := object{
		"operationId": id,
		"summary":     summary,
		"responses":   object{"200": ok},
	}
	if body != nil {
		op["requestBody"] = object{"required": true, "content": jsonContent(body)}
	}
	for _, code := range errs {
		status, _ := strconv.Atoi(code)
		op["responses"].(object)[code] = response(http.StatusText(status), ref("ErrorResponse"))
	}
	return op
}

func pathParam(name, description string) object {
	return object{"name": name, "in": "path", "required": true, "description": description, "schema": object{"type": "string"}}
}

func props(kv ...interface{}) object {
	p := object{}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i].(string)] = kv[i+1]
	}
	return p
}

var (
	str     = object{"type": "string"}
	integer = object{"type": "integer"}
	number  = object{"type": "number"}
	boolean = object{"type": "boolean"}
	strList = object{"type": "array", "items": str}
	vector  = object{"type": "array", "items": number}
	strMap  = object{"type": "object", "additionalProperties": str}
)

func strategyEnum() object {
	names := lo.Map(models.AllStrategies(), func(s models.RecallStrategy, _ int) string { return string(s) })
	return object{"type": "string", "enum": names}
}

// openAPISpec builds the OpenAPI 3.0 document for the REST surface
func openAPISpec() object {
	memory := ref("MemoryRecord")
	list := object{"type": "object", "properties": props(
		"records", object{"type": "array", "items": memory},
		"count", integer,
	)}

	return object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Cognitive Mesh Memory API",
			"description": "Store memory records and recall them with exact, fuzzy, semantic, temporal or hybrid ranking",
			"version":     "1.0.0",
		},
		"servers": []object{{"url": "http://localhost:8080", "description": "Local development server"}},
		"paths": object{
			"/health": object{"get": operation("getHealth", "Health check", nil, response("Server is healthy", nil))},
			"/ready":  object{"get": operation("getReady", "Readiness check", nil, response("Dependencies are ready", nil), "503")},
			"/api/v1/memories": object{
				"post": operation("storeMemory", "Store a memory record", ref("StoreMemoryRequest"),
					response("Memory stored", nil), "400", "409"),
			},
			"/api/v1/memories/{id}": object{
				"parameters": []object{pathParam("id", "Memory record id")},
				"get":        operation("getMemory", "Get a memory record", nil, response("Memory record", memory), "404"),
				"put": operation("updateMemory", "Update fields of a memory record", ref("UpdateMemoryRequest"),
					response("Memory updated", nil), "400", "404"),
				"delete": operation("deleteMemory", "Delete a memory record", nil, response("Memory deleted", nil), "404"),
			},
			"/api/v1/recall": object{
				"post": operation("recall", "Recall records with a strategy", ref("RecallRequest"),
					response("Ranked records", ref("RecallResponse")), "400"),
			},
			"/api/v1/recall/tags": object{
				"post": operation("recallByTags", "Recall records by tag overlap", ref("RecallByTagsRequest"),
					response("Ranked records", list), "400"),
			},
			"/api/v1/recall/recent": object{
				"get": lo.Assign(
					operation("recallRecent", "List recently accessed records", nil, response("Recent records", list), "400"),
					object{"parameters": []object{{"name": "count", "in": "query", "schema": object{"type": "integer", "default": models.DefaultMaxResults}}}},
				),
			},
			"/api/v1/consolidate": object{
				"post": operation("consolidate", "Promote frequently used records and prune stale ones", ref("ConsolidateRequest"),
					response("Sweep result", ref("ConsolidationResult")), "400"),
			},
			"/api/v1/strategies/best": object{
				"get": operation("bestStrategy", "Recommended recall strategy", nil,
					response("Best strategy", object{"type": "object", "properties": props(
						"strategy", strategyEnum(),
						"performance", ref("StrategyPerformance"),
					)})),
			},
			"/api/v1/strategies/{strategy}/performance": object{
				"parameters": []object{pathParam("strategy", "Recall strategy name")},
				"post": operation("recordPerformance", "Record the outcome of a recall", ref("PerformanceRequest"),
					response("Updated running statistics", ref("StrategyPerformance")), "400"),
			},
			"/api/v1/statistics": object{
				"get": operation("getStatistics", "Engine statistics", nil, response("Statistics", ref("Statistics"))),
			},
		},
		"components": object{"schemas": object{
			"MemoryRecord": object{"type": "object", "properties": props(
				"id", str,
				"content", str,
				"embedding", vector,
				"tags", strList,
				"importance", number,
				"created_at", object{"type": "string", "format": "date-time"},
				"last_accessed_at", object{"type": "string", "format": "date-time"},
				"access_count", integer,
				"consolidated", boolean,
				"metadata", strMap,
			)},
			"StoreMemoryRequest": object{"type": "object", "properties": props(
				"id", str,
				"content", str,
				"embedding", vector,
				"tags", strList,
				"importance", number,
				"created_at", object{"type": "string", "format": "date-time"},
				"metadata", strMap,
			)},
			"UpdateMemoryRequest": object{"type": "object", "properties": props(
				"content", str,
				"embedding", vector,
				"tags", strList,
				"importance", number,
				"metadata", strMap,
			)},
			"RecallRequest": object{"type": "object", "properties": props(
				"query_text", str,
				"query_embedding", vector,
				"strategy", object{"type": "string", "description": "A strategy name or \"best\"", "default": string(models.StrategyHybrid)},
				"max_results", object{"type": "integer", "default": models.DefaultMaxResults},
				"min_relevance", number,
				"after", object{"type": "string", "format": "date-time"},
				"before", object{"type": "string", "format": "date-time"},
			)},
			"RecallResponse": object{"type": "object", "properties": props(
				"records", object{"type": "array", "items": memory},
				"scores", object{"type": "object", "additionalProperties": number},
				"strategy", strategyEnum(),
				"duration_ms", number,
				"total_candidates", integer,
				"count", integer,
			)},
			"RecallByTagsRequest": object{"type": "object", "required": []string{"tags"}, "properties": props(
				"tags", strList,
				"max_results", integer,
			)},
			"ConsolidateRequest": object{"type": "object", "properties": props(
				"access_count_threshold", integer,
				"importance_threshold", number,
				"prune_age", object{"type": "string", "example": "30d"},
			)},
			"ConsolidationResult": object{"type": "object", "properties": props(
				"promoted", integer,
				"pruned", integer,
				"retained", integer,
				"duration_ms", number,
			)},
			"PerformanceRequest": object{"type": "object", "properties": props(
				"relevance", number,
				"latency_ms", number,
				"was_hit", boolean,
			)},
			"StrategyPerformance": object{"type": "object", "properties": props(
				"strategy", strategyEnum(),
				"sample_count", integer,
				"avg_relevance", number,
				"avg_latency_ms", number,
				"hit_rate", number,
			)},
			"Statistics": object{"type": "object", "properties": props(
				"total_records", integer,
				"consolidated_count", integer,
				"avg_importance", number,
				"strategy_performance", object{"type": "object", "additionalProperties": ref("StrategyPerformance")},
			)},
			"ErrorResponse": object{"type": "object", "properties": props("error", str)},
		}},
	}
}

// handleOpenAPISpec returns the OpenAPI 3.0 specification
func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	successResponse(w, openAPISpec())
}
