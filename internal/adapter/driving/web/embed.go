package web

import "embed"

// StaticFS holds the embedded static assets for the status dashboard.
//
//go:embed static/*
var StaticFS embed.FS
