// Package assets embeds the HTML templates and static files served by the web handlers.
package assets

import "embed"

//go:embed templates static
var FS embed.FS
