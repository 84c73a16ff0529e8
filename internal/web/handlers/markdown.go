package handlers

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/blockedby/tg-archive/internal/archive"
)

var channelKey = parser.NewContextKey()

// mediaLinkTransformer points relative media references at the media route
// of the channel being rendered. Links additionally open in a new tab.
type mediaLinkTransformer struct{}

func (mediaLinkTransformer) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	channel, _ := pc.Get(channelKey).(string)
	if channel == "" {
		return
	}
	prefix := "/media/" + url.PathEscape(channel) + "/"

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			if dest, ok := rewriteMediaRef(node.Destination, prefix); ok {
				node.Destination = dest
				node.SetAttributeString("target", []byte("_blank"))
				node.SetAttributeString("rel", []byte("noopener noreferrer"))
				node.SetAttributeString("class", []byte("media-link"))
			}
		case *ast.Image:
			if dest, ok := rewriteMediaRef(node.Destination, prefix); ok {
				node.Destination = dest
			}
		}
		return ast.WalkContinue, nil
	})
}

func rewriteMediaRef(dest []byte, prefix string) ([]byte, bool) {
	name, ok := strings.CutPrefix(string(dest), archive.MediaDirName+"/")
	if !ok || name == "" {
		return nil, false
	}
	return []byte(prefix + name), true
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
		parser.WithASTTransformers(util.Prioritized(mediaLinkTransformer{}, 100)),
	),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderMarkdown converts an archive file of channel to HTML. Raw HTML in
// the source is not passed through.
func RenderMarkdown(channel, source string) (template.HTML, error) {
	pc := parser.NewContext()
	pc.Set(channelKey, channel)

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf, parser.WithContext(pc)); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
