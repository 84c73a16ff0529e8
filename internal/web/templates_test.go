package web

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/tg-archive/internal/repository"
	"github.com/blockedby/tg-archive/internal/settings"
)

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0644)
}

func newTestEngine(t *testing.T, page string) *TemplateEngine {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, writeFile(dir, "layout.html",
		`{{ define "layout" }}<!DOCTYPE html><html><body>{{ template "content" . }}</body></html>{{ end }}`))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0755))
	require.NoError(t, writeFile(filepath.Join(dir, "pages"), "page.html", page))
	return NewTemplateEngine(dir, false)
}

func TestTemplateEngine_Render(t *testing.T) {
	engine := newTestEngine(t, `{{ define "content" }}<h1>{{ .Title }}</h1>{{ end }}`)
	require.NoError(t, engine.Load())

	var buf bytes.Buffer
	require.NoError(t, engine.Render(&buf, "page", map[string]interface{}{"Title": "Dashboard"}))

	html := buf.String()
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "<h1>Dashboard</h1>")
}

func TestTemplateEngine_RenderContent(t *testing.T) {
	engine := newTestEngine(t, `{{ define "content" }}<h1>{{ .Title }}</h1>{{ end }}`)
	require.NoError(t, engine.Load())

	var buf bytes.Buffer
	require.NoError(t, engine.RenderContent(&buf, "page", map[string]interface{}{"Title": "Search"}))

	assert.Equal(t, "<h1>Search</h1>", buf.String())
}

func TestTemplateEngine_NotLoaded(t *testing.T) {
	engine := newTestEngine(t, `{{ define "content" }}x{{ end }}`)

	var buf bytes.Buffer
	assert.Error(t, engine.Render(&buf, "page", nil))
}

func TestTemplateEngine_MissingPage(t *testing.T) {
	engine := newTestEngine(t, `{{ define "content" }}x{{ end }}`)
	require.NoError(t, engine.Load())

	var buf bytes.Buffer
	assert.Error(t, engine.Render(&buf, "absent", nil))
}

func TestTemplateEngine_Funcs(t *testing.T) {
	engine := newTestEngine(t, `{{ define "content" }}`+
		`<a href="/channel/{{ urlpath .Name }}">{{ lower .Name }}</a> {{ fileSize .Size }} `+
		`{{ with dict "k" "v" }}{{ .k }}{{ end }} {{ safeHTML .Snippet }}{{ end }}`)
	require.NoError(t, engine.Load())

	var buf bytes.Buffer
	require.NoError(t, engine.RenderContent(&buf, "page", map[string]interface{}{
		"Name":    "Go News",
		"Size":    int64(2048),
		"Snippet": "a <mark>go</mark> b",
	}))

	assert.Equal(t, `<a href="/channel/Go%20News">go news</a> 2.0 KB v a <mark>go</mark> b`, buf.String())
}

func TestTemplateEngine_Reload(t *testing.T) {
	engine := newTestEngine(t, `{{ define "content" }}one{{ end }}`)
	engine.reload = true

	var buf bytes.Buffer
	require.NoError(t, engine.RenderContent(&buf, "page", nil))
	assert.Equal(t, "one", buf.String())

	require.NoError(t, writeFile(filepath.Join(engine.templatesDir, "pages"), "page.html", `{{ define "content" }}two{{ end }}`))
	buf.Reset()
	require.NoError(t, engine.RenderContent(&buf, "page", nil))
	assert.Equal(t, "two", buf.String())
}

func TestFileSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileSize(tt.in))
	}
}

func realTemplatesDir(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)

	dir := filepath.Join(wd, "templates")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		dir = filepath.Join(wd, "internal", "web", "templates")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatalf("Templates directory not found at %s", dir)
	}
	return dir
}

func TestRealTemplates_RenderAllPages(t *testing.T) {
	engine := NewTemplateEngine(realTemplatesDir(t), false)
	require.NoError(t, engine.Load(), "Failed to load real templates")

	pages := map[string]map[string]interface{}{
		"dashboard": {
			"Title": "Dashboard", "ActivePage": "dashboard",
			"Channels": []repository.ChannelSummary{{Name: "Go News", ArchiveType: "archived_channels", FileCount: 1}},
			"Stats":    repository.Stats{TotalChannels: 1},
		},
		"channel": {
			"Title": "Go News", "ActivePage": "dashboard", "Channel": "Go News",
			"Files": []repository.FileInfo{{Name: "Go News_2024-03-15_12-00-00.md", Size: 1536}},
		},
		"view": {
			"Title": "f.md", "ActivePage": "dashboard", "Channel": "Go News", "File": "f.md",
			"Content": template.HTML("<h2>Message 1</h2>"),
		},
		"search": {
			"Title": "Search", "ActivePage": "search", "Query": "go", "Channel": "",
			"Channels": []repository.ChannelSummary{{Name: "Go News"}},
			"Results":  []repository.SearchResult{{Channel: "Go News", MessageID: "1", Content: "<mark>go</mark>", File: "f.md"}},
		},
		"settings": {
			"Title": "Settings", "ActivePage": "settings",
			"Channels":        []settings.Channel{{Identifier: "@golang", Name: "Go News", Enabled: true}},
			"ArchiveSettings": settings.Defaults().ArchiveSettings,
			"Configured":      false,
		},
	}

	for name, data := range pages {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, engine.Render(&buf, name, data))
			assert.Contains(t, buf.String(), `id="sidebar"`)
		})
	}
}
