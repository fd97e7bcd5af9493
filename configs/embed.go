// Package configs provides embedded configuration templates for rehydrate.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution. 'rehydrate init' writes them into the project root.
package configs

import _ "embed"

// ProjectConfigTemplate is the template for project-level configuration,
// written to .rehydrate.yaml by 'rehydrate init'.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// AnchorsTemplate is the starter anchor registry seed, written to
// anchors.yaml by 'rehydrate init'.
//
//go:embed anchors.example.yaml
var AnchorsTemplate string
