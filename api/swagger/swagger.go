package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Timetable API",
        "description": "Weekly school timetable generation",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "ApiKey": {"type": "apiKey", "in": "header", "name": "X-API-KEY"},
        "Bearer": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Legacy", "description": "Flat contract kept for existing clients"},
        {"name": "Timetables", "description": "Enveloped timetable API"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unavailable"}
                }
            }
        },
        "/generate": {
            "post": {
                "tags": ["Legacy"],
                "summary": "Generate a weekly timetable (flat response)",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "array", "items": {"$ref": "#/definitions/ClassRequest"}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/GenerateResponse"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/LegacyError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/LegacyError"}},
                    "403": {"description": "Origin not allowed", "schema": {"$ref": "#/definitions/LegacyError"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/LegacyError"}}
                }
            }
        },
        "/test": {
            "get": {
                "tags": ["Legacy"],
                "summary": "Liveness and version probe",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/progress": {
            "get": {
                "tags": ["Legacy"],
                "summary": "Asynchronous generation progress",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/timetables/generate": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Generate a weekly timetable",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "504": {"description": "Search timed out", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/jobs": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Queue a timetable generation",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Queue unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/jobs/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a queued generation",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/runs": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List stored generation runs",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/timetables/runs/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a stored generation run",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/runs/{id}/exports": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Export a stored run as CSV or PDF",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "required": true, "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/timetables/exports/{token}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Download an export via signed token",
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetables/cache": {
            "delete": {
                "tags": ["Timetables"],
                "summary": "Drop every cached timetable",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "responses": {"204": {"description": "No Content"}}
            }
        }
    },
    "definitions": {
        "PeriodRequest": {
            "type": "object",
            "properties": {
                "period_day": {"type": "string"},
                "start_time": {"type": "string", "example": "07:00"},
                "end_time": {"type": "string", "example": "07:45"}
            }
        },
        "LessonRequest": {
            "type": "object",
            "properties": {
                "subject_id": {"type": "integer"},
                "teacher_id": {"type": "integer"},
                "taught_per_week": {"type": "integer"},
                "is_back_to_back": {"type": "boolean"}
            }
        },
        "ClassRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "integer"},
                "class_name": {"type": "string"},
                "periods": {"type": "array", "items": {"$ref": "#/definitions/PeriodRequest"}},
                "lessons": {"type": "array", "items": {"$ref": "#/definitions/LessonRequest"}}
            }
        },
        "GenerateRequest": {
            "type": "object",
            "properties": {
                "classes": {"type": "array", "items": {"$ref": "#/definitions/ClassRequest"}}
            }
        },
        "GenerateResponse": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "status": {"type": "string", "enum": ["success", "partial"]},
                "quality_check": {"type": "string", "enum": ["passed", "issues_found"]},
                "quality_issues": {"type": "array", "items": {"type": "string"}},
                "timestamp": {"type": "string", "format": "date-time"},
                "processing_time_seconds": {"type": "number"},
                "timetable": {"type": "object"},
                "summary": {"type": "object"},
                "stats": {"type": "object"},
                "cache_hit": {"type": "boolean"}
            }
        },
        "LegacyError": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
