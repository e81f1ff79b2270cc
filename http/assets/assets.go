package assets

import (
	"embed"

	"github.com/benbjohnson/hashfs"
)

//go:embed css/*.css
//go:embed scripts/*.js
var fsys embed.FS

var FS = hashfs.NewFS(fsys)
