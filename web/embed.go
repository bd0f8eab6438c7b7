// Package web embeds the single-page editor served by "cbz-edit serve".
package web

import "embed"

// FS holds index.html, which talks to the /api endpoints and follows the
// status WebSocket.
//
//go:embed index.html
var FS embed.FS
