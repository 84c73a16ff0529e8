package web

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TemplateEngine handles HTML template rendering
type TemplateEngine struct {
	templatesDir string
	reload       bool // dev mode: reload on each request

	mu        sync.RWMutex
	templates *template.Template
}

// NewTemplateEngine creates a new template engine
func NewTemplateEngine(templatesDir string, reload bool) *TemplateEngine {
	return &TemplateEngine{
		templatesDir: templatesDir,
		reload:       reload,
	}
}

var funcs = template.FuncMap{
	"dict": func(values ...interface{}) (map[string]interface{}, error) {
		if len(values)%2 != 0 {
			return nil, errors.New("dict: odd number of arguments")
		}
		dict := make(map[string]interface{}, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				return nil, errors.New("dict: keys must be strings")
			}
			dict[key] = values[i+1]
		}
		return dict, nil
	},
	"lower":    strings.ToLower,
	"urlpath":  url.PathEscape,
	"fileSize": FileSize,
	// search snippets are escaped before highlighting
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
}

// FileSize formats a byte count for display, e.g. "1.5 KB".
func FileSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Load parses all templates from the templates directory
func (te *TemplateEngine) Load() error {
	tmpl := template.New("").Funcs(funcs)

	err := filepath.Walk(te.templatesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// pages are parsed per render
		if info.IsDir() && info.Name() == "pages" {
			return filepath.SkipDir
		}

		if !info.IsDir() && filepath.Ext(path) == ".html" {
			_, err = tmpl.ParseFiles(path)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	te.mu.Lock()
	te.templates = tmpl
	te.mu.Unlock()
	return nil
}

// Render renders page inside the layout
func (te *TemplateEngine) Render(w io.Writer, page string, data interface{}) error {
	return te.execute(w, page, "layout", data)
}

// RenderContent renders only the content template without layout (for HTMX)
func (te *TemplateEngine) RenderContent(w io.Writer, page string, data interface{}) error {
	return te.execute(w, page, "content", data)
}

// RenderPartial renders a named template (partial)
func (te *TemplateEngine) RenderPartial(w io.Writer, name string, data interface{}) error {
	base, err := te.base()
	if err != nil {
		return err
	}
	return base.ExecuteTemplate(w, name, data)
}

func (te *TemplateEngine) base() (*template.Template, error) {
	if te.reload {
		if err := te.Load(); err != nil {
			return nil, err
		}
	}

	te.mu.RLock()
	defer te.mu.RUnlock()
	if te.templates == nil {
		return nil, errors.New("templates not loaded")
	}
	return te.templates, nil
}

func (te *TemplateEngine) execute(w io.Writer, page, entry string, data interface{}) error {
	base, err := te.base()
	if err != nil {
		return err
	}

	tmpl, err := base.Clone()
	if err != nil {
		return err
	}

	tmpl, err = tmpl.ParseFiles(filepath.Join(te.templatesDir, "pages", page+".html"))
	if err != nil {
		return err
	}

	return tmpl.ExecuteTemplate(w, entry, data)
}
