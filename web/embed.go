// Package web embeds the console templates and static assets into the binary.
package web

import "embed"

// Templates holds layouts, partials and pages parsed by the view engine.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static is served under /static.
//
//go:embed static/**/*
var Static embed.FS
