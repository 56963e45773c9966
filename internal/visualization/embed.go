package visualization

import "embed"

// templates contains the embedded HTML templates for the scene browser.
//
//go:embed templates/*
var templates embed.FS
