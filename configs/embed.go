// Package configs embeds the configuration templates written by
// `amankb config init`.
//
// Templates:
//   - user-config.example.yaml: machine-wide settings at
//     ~/.config/amankb/config.yaml (storage, database, backends)
//   - project-config.example.yaml: per-deployment overrides in
//     .amankb.yaml next to the --dir
//
// Both are loaded by internal/config.Load in that order, below .env and
// AMANKB_* variables.
package configs

import _ "embed"

// UserConfigTemplate is written by `amankb config init`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `amankb config init --project`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
