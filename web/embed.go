// Package web embeds the browser client served at the root of the API.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist/*
var distFiles embed.FS

// GetDistFS returns the client files rooted at dist.
func GetDistFS() (fs.FS, error) {
	return fs.Sub(distFiles, "dist")
}
