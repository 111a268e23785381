package render

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// htmlSuffix marks templates rendered with contextual HTML escaping.
const htmlSuffix = ".html.tmpl"

var funcs = map[string]any{
	"pathescape": url.PathEscape,
	"join":       strings.Join,
	"rfc1123z": func(t time.Time) string {
		return t.Format(time.RFC1123Z)
	},
	"humansize": humanSize,
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

type executor interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

// Engine renders the embedded templates: pages ending in .html.tmpl through html/template,
// packaging files through text/template.
type Engine struct {
	text  *template.Template
	pages *htmltemplate.Template
}

// New parses every embedded template.
func New() (*Engine, error) {
	names, err := fs.Glob(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	var textFiles, pageFiles []string
	for _, name := range names {
		if strings.HasSuffix(name, htmlSuffix) {
			pageFiles = append(pageFiles, name)
		} else {
			textFiles = append(textFiles, name)
		}
	}

	e := &Engine{
		text:  template.New("render").Funcs(funcs),
		pages: htmltemplate.New("pages").Funcs(funcs),
	}
	if len(textFiles) > 0 {
		if e.text, err = e.text.ParseFS(templatesFS, textFiles...); err != nil {
			return nil, fmt.Errorf("parse templates: %w", err)
		}
	}
	if len(pageFiles) > 0 {
		if e.pages, err = e.pages.ParseFS(templatesFS, pageFiles...); err != nil {
			return nil, fmt.Errorf("parse pages: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) lookup(name string) executor {
	if strings.HasSuffix(path.Base(name), htmlSuffix) {
		if e.pages.Lookup(name) != nil {
			return e.pages
		}
		return nil
	}
	if e.text.Lookup(name) != nil {
		return e.text
	}
	return nil
}

// Render executes the named template with data.
func (e *Engine) Render(name string, data any) (string, error) {
	if e == nil || e.text == nil || e.pages == nil {
		return "", fmt.Errorf("nil engine")
	}
	t := e.lookup(name)
	if t == nil {
		return "", fmt.Errorf("template %q not found", name)
	}

	buf := bytes.NewBuffer(nil)
	if err := t.ExecuteTemplate(buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Has reports whether a template with the given name was parsed.
func (e *Engine) Has(name string) bool {
	if e == nil || e.text == nil || e.pages == nil {
		return false
	}
	return e.lookup(name) != nil
}
