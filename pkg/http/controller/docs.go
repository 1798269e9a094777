package controller

import (
	_ "embed"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	mhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

//go:embed docs.md
var docsMarkdown []byte

var (
	docsOnce sync.Once
	docsHTML []byte
)

// mdToHTML renders markdown with the common extensions
func mdToHTML(md []byte) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)

	htmlFlags := mhtml.CommonFlags | mhtml.HrefTargetBlank | mhtml.CompletePage
	renderer := mhtml.NewRenderer(mhtml.RendererOptions{Flags: htmlFlags, Title: "trainer"})
	return markdown.Render(doc, renderer)
}

// Docs serves the service documentation as HTML
func Docs(c *gin.Context) {
	docsOnce.Do(func() {
		docsHTML = mdToHTML(docsMarkdown)
	})
	c.Data(http.StatusOK, "text/html; charset=utf-8", docsHTML)
}
