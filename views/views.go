// Package views embeds the checkout pages rendered by the handler package.
package views

import (
	"embed"
	"net/http"

	"github.com/gofiber/template/html/v2"
)

//go:embed *.html
var files embed.FS

// Engine returns the fiber view engine over the embedded templates.
func Engine() *html.Engine {
	return html.NewFileSystem(http.FS(files), ".html")
}
