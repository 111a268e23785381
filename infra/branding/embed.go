package branding

import "embed"

// Files contains the stylesheet used by the result browser.
//
//go:embed all:*
var Files embed.FS
