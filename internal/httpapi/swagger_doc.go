//go:build swagger

package httpapi

import "github.com/swaggo/swag"

// docTemplate is the OpenAPI document behind /swagger/doc.json. It mirrors the
// handler annotations in server.go.
const docTemplate = `{
    "swagger": "2.0",
    "info": {"title": "{{.Title}}", "description": "{{escape .Description}}", "version": "{{.Version}}"},
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {"get": {"summary": "Service health", "produces": ["application/json"],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}}}}},
        "/status": {"get": {"summary": "Model status", "produces": ["application/json"],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}}},
        "/predict": {"post": {"summary": "Score a transaction", "consumes": ["application/json"], "produces": ["application/json"],
            "parameters": [{"in": "body", "name": "transaction", "required": true, "schema": {"$ref": "#/definitions/types.TransactionRequest"}}],
            "responses": {
                "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PredictResponse"}},
                "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
            }}}
    },
    "definitions": {
        "types.TransactionRequest": {"type": "object", "required": ["amount", "feature_1", "feature_2"],
            "properties": {"amount": {"type": "number"}, "feature_1": {"type": "number"}, "feature_2": {"type": "number"}}},
        "types.PredictResponse": {"type": "object", "properties": {"fraud_probability": {"type": "number"}}},
        "types.HealthResponse": {"type": "object", "properties": {
            "status": {"type": "string"}, "model_loaded": {"type": "boolean"}, "model_error": {"type": "string"}}},
        "types.ErrorResponse": {"type": "object", "properties": {
            "error": {"type": "string"}, "code": {"type": "integer"}, "detail": {"type": "string"}}},
        "types.StatusResponse": {"type": "object", "properties": {
            "model_loaded": {"type": "boolean"}, "model_error": {"type": "string"}, "model_source": {"type": "string"},
            "model_flavor": {"type": "string"}, "inference_kind": {"type": "string"},
            "uptime_seconds": {"type": "integer"}, "server_time_unix": {"type": "integer"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "fraudd API",
	Description:      "Fraud model serving gateway.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
