// Package swagger holds the OpenAPI document of the schemagate HTTP API,
// registered with swag so that http-swagger can serve it.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}}}
            }
        },
        "/health/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}},
                    "503": {"description": "No snapshot loaded", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/version": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Get service version",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VersionResponse"}}}
            }
        },
        "/api/schema": {
            "get": {
                "produces": ["application/vnd.api+json"],
                "tags": ["Schema"],
                "summary": "Current schema snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "503": {"description": "No snapshot loaded", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/api/types": {
            "get": {
                "produces": ["application/vnd.api+json"],
                "tags": ["Schema"],
                "summary": "List types",
                "parameters": [
                    {"type": "string", "description": "Filter by kind", "name": "kind", "in": "query"},
                    {"type": "integer", "description": "Page number", "name": "page[number]", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "page[size]", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/jsonapi.Document"}}}
            }
        },
        "/api/types/{name}": {
            "get": {
                "produces": ["application/vnd.api+json"],
                "tags": ["Schema"],
                "summary": "Get type",
                "parameters": [{"type": "string", "description": "Type name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/api/types/{name}/source": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["Schema"],
                "summary": "Generated source of a type",
                "parameters": [{"type": "string", "description": "Type name", "name": "name", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "422": {"description": "Unsupported shape", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        },
        "/api/manifest": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Schema"],
                "summary": "Generated manifest",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/api/snapshots": {
            "get": {
                "produces": ["application/vnd.api+json"],
                "tags": ["History"],
                "summary": "Published snapshot history",
                "parameters": [{"type": "integer", "description": "Maximum number of entries", "name": "limit", "in": "query"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/jsonapi.Document"}}}
            }
        },
        "/api/changes": {
            "get": {
                "produces": ["application/vnd.api+json"],
                "tags": ["History"],
                "summary": "Schema changes since a published version",
                "parameters": [{"type": "string", "description": "Published version, version prefix, or latest", "name": "base", "in": "query", "required": true}, {"type": "boolean", "description": "Only list breaking changes", "name": "breaking", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/jsonapi.Document"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/jsonapi.Document"}}
                }
            }
        }
    },
    "definitions": {
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "error": {"type": "string"}
            }
        },
        "http.VersionResponse": {
            "type": "object",
            "properties": {
                "version": {"type": "string", "example": "1.0.0"},
                "service": {"type": "string", "example": "schemagate"},
                "schema_version": {"type": "string"}
            }
        },
        "jsonapi.Document": {
            "type": "object",
            "properties": {
                "data": {},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/jsonapi.Error"}},
                "meta": {"type": "object", "additionalProperties": true},
                "links": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "jsonapi.Error": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "code": {"type": "string"},
                "title": {"type": "string"},
                "detail": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "schemagate API",
	Description:      "Read-only access to the live schema snapshot, its generated bindings and the published history.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
