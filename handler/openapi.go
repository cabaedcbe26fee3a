package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the feed API.
func OpenAPISpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "feedcore API",
			"description": "Personalized product feed and ranking API",
			"version":     "1.0.0",
		},
		"servers": []map[string]interface{}{
			{"url": "http://localhost:8080", "description": "Local development"},
		},
		"paths": openAPIPaths(),
		"components": map[string]interface{}{
			"schemas": openAPISchemas(),
		},
		"tags": []map[string]interface{}{
			{"name": "Feed", "description": "Ranked product feed"},
			{"name": "Events", "description": "Interaction event ingestion"},
			{"name": "CacheAdmin", "description": "Feature cache stats and flush operations"},
			{"name": "PolicyAdmin", "description": "Diversity policy overrides"},
			{"name": "ExperimentAdmin", "description": "Ranking-weight A/B experiments"},
			{"name": "Health", "description": "Service health checks"},
		},
	}
}

func openAPIPaths() map[string]interface{} {
	return map[string]interface{}{
		"/feed": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Feed"},
				"summary":     "Get a ranked, paginated product feed",
				"operationId": "getFeed",
				"parameters": []map[string]interface{}{
					{"name": "userId", "in": "query", "schema": map[string]interface{}{"type": "string"}},
					{"name": "sessionId", "in": "query", "schema": map[string]interface{}{"type": "string"}},
					{"name": "searchText", "in": "query", "description": "Free-text search query", "schema": map[string]interface{}{"type": "string"}},
					{"name": "productCategoryId", "in": "query", "schema": map[string]interface{}{"type": "string"}},
					{"name": "cursor", "in": "query", "schema": map[string]interface{}{"type": "string"}},
					{"name": "limit", "in": "query", "schema": map[string]interface{}{"type": "integer", "default": 30}},
					{"name": "experimentId", "in": "query", "schema": map[string]interface{}{"type": "string"}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Ranked feed page",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{"$ref": "#/components/schemas/FeedResponse"},
							},
						},
					},
					"400": map[string]interface{}{"description": "Invalid query parameters"},
					"405": map[string]interface{}{"description": "Method not allowed"},
					"500": map[string]interface{}{"description": "Internal error"},
				},
			},
		},
		"/events": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Events"},
				"summary":     "Ingest one interaction event",
				"operationId": "postEvent",
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/Event"},
						},
					},
				},
				"responses": map[string]interface{}{
					"202": map[string]interface{}{"description": "Event accepted"},
					"400": map[string]interface{}{"description": "Invalid event payload"},
					"405": map[string]interface{}{"description": "Method not allowed"},
				},
			},
		},
		"/admin/cache/stats": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"CacheAdmin"},
				"summary":     "Feature cache hit-rate statistics",
				"operationId": "getCacheStats",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Cache hit/miss statistics"},
				},
			},
		},
		"/admin/policies": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"PolicyAdmin"},
				"summary":     "List diversity policy overrides",
				"operationId": "listPolicies",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "All diversity policy overrides"},
				},
			},
			"post": map[string]interface{}{
				"tags":        []string{"PolicyAdmin"},
				"summary":     "Create a diversity policy override",
				"operationId": "createPolicy",
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/DiversityPolicy"},
						},
					},
				},
				"responses": map[string]interface{}{
					"201": map[string]interface{}{"description": "Policy created"},
				},
			},
		},
		"/admin/experiments": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"ExperimentAdmin"},
				"summary":     "List ranking-weight experiments",
				"operationId": "listExperiments",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "All experiments"},
				},
			},
			"post": map[string]interface{}{
				"tags":        []string{"ExperimentAdmin"},
				"summary":     "Create a ranking-weight experiment",
				"operationId": "createExperiment",
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/Experiment"},
						},
					},
				},
				"responses": map[string]interface{}{
					"201": map[string]interface{}{"description": "Experiment created"},
				},
			},
		},
		"/healthz": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Liveness probe",
				"operationId": "healthz",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Service is alive"},
				},
			},
		},
		"/ready": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Readiness probe",
				"operationId": "ready",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Service is ready"},
				},
			},
		},
		"/metrics": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Prometheus metrics",
				"operationId": "metrics",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Prometheus text exposition format"},
				},
			},
		},
	}
}

func openAPISchemas() map[string]interface{} {
	return map[string]interface{}{
		"FeedResponse": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"items":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"$ref": "#/components/schemas/FeedItem"}},
				"cursor": map[string]interface{}{"type": "string"},
			},
		},
		"FeedItem": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"score": map[string]interface{}{"type": "number"},
				"product": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":          map[string]interface{}{"type": "string"},
						"title":       map[string]interface{}{"type": "string"},
						"merchant_id": map[string]interface{}{"type": "string"},
						"category_id": map[string]interface{}{"type": "string"},
						"popularity":  map[string]interface{}{"type": "number"},
					},
				},
			},
		},
		"Event": map[string]interface{}{
			"type":     "object",
			"required": []string{"sessionId", "productId", "type"},
			"properties": map[string]interface{}{
				"userId":    map[string]interface{}{"type": "string"},
				"sessionId": map[string]interface{}{"type": "string"},
				"productId": map[string]interface{}{"type": "string"},
				"type":      map[string]interface{}{"type": "string", "enum": []string{"VIEW", "CLICK", "CART", "PURCHASE"}},
			},
		},
		"DiversityPolicy": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":                 map[string]interface{}{"type": "string"},
				"category_id":        map[string]interface{}{"type": "string"},
				"max_consecutive":    map[string]interface{}{"type": "integer"},
				"max_merchant_ratio": map[string]interface{}{"type": "number"},
				"max_category_ratio": map[string]interface{}{"type": "number"},
				"active":             map[string]interface{}{"type": "boolean"},
			},
		},
		"Experiment": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":   map[string]interface{}{"type": "string"},
				"name": map[string]interface{}{"type": "string"},
				"arms": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "object"}},
			},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error":   map[string]interface{}{"type": "string"},
				"message": map[string]interface{}{"type": "string"},
			},
		},
	}
}

// OpenAPIHandler serves the OpenAPI spec at /openapi.json.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := OpenAPISpec()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(spec)
	}
}

// SwaggerUIHandler serves a minimal Swagger UI page.
func SwaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>feedcore API</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
    SwaggerUI({
        url: '/openapi.json',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
        layout: "BaseLayout"
    });
    </script>
</body>
</html>`
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}
