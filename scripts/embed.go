// Package scripts embeds the bundled Risor outline scripts.
package scripts

import "embed"

// FS holds outline/<language>.risor for every language with a bundled
// script.
//
//go:embed outline/*.risor
var FS embed.FS
