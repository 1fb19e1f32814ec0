// Package spec embeds the OpenAPI document of the tripbook API.
// The HTTP server serves it at /openapi.yaml.
package spec

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
