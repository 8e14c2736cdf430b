// Package configs provides embedded configuration templates for amannotes.
//
// The templates are written by `amannotes config init`:
//   - user-config.example.yaml: machine settings (embedding provider,
//     Ollama host, logging) at ~/.config/amannotes/config.yaml
//   - project-config.example.yaml: per-notebook settings (notes root,
//     backends, merge policy) at .amannotes.yaml
//
// Configuration hierarchy (see internal/config Load):
//  1. Defaults
//  2. User config
//  3. Project config
//  4. .env
//  5. Environment variables (AMANNOTES_*)
package configs

import _ "embed"

// UserConfigTemplate is the template for machine-level configuration.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for per-notebook configuration.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
