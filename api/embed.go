// Package api holds the Kensa HTTP API contract. The server serves it at
// GET /openapi.yaml.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.1 document for the /v1 run, site and worker
// endpoints.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
