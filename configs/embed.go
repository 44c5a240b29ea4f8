// Package configs embeds the configuration template written by
// `searchschema config init`.
package configs

import _ "embed"

// ConfigTemplate is the commented example configuration.
// Written to .searchschema.yaml or the user config path on request.
//
//go:embed config.example.yaml
var ConfigTemplate string
