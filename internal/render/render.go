// Package render executes the embedded page templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"subtranslate/site/internal/fingerprint"
)

const (
	PageHome     = "home"
	PageSecurity = "security"
	PageNotFound = "404"
	PageError    = "500"
)

var pageNames = []string{PageHome, PageSecurity, PageNotFound, PageError}

type Feature struct {
	Title       string
	Description string
	Icon        string
}

type Step struct {
	Step        string
	Description string
	Icon        string
}

type SecurityCheck struct {
	Title  string
	Status string
	Detail string
}

// Page is the data every template receives. Fields a page does not use are
// left zero.
type Page struct {
	Title       string
	Description string
	ActivePath  string
	Theme       string
	Verified    bool
	Production  bool
	RayID       string
	RequestID   string
	Year        int

	// challenge page
	SiteKey        string
	Redirect       string
	Fingerprint    fingerprint.Fingerprint
	SecurityChecks []SecurityCheck

	// home page
	Features []Feature
	Steps    []Step
}

var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// New parses layout.html together with each page template found under
// templates/ in fsys.
func New(fsys fs.FS) (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(fsys,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes the named page into a buffer first so a template error
// never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data *Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufferPool.Put(buf)
	}()

	if err := t.ExecuteTemplate(buf, "layout", data); err != nil {
		return fmt.Errorf("execute %s template: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}
