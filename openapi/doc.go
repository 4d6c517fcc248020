// Package openapi adapts a REST API described by an OpenAPI 3 document to MCP
// tools: it loads and parses the document, derives the server to call and
// performs one-shot HTTP requests for tool calls.
package openapi
