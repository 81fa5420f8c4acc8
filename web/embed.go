// Package web provides the embedded browser UI.
package web

import "embed"

//go:embed index.html player.html app.js style.css
var Assets embed.FS
