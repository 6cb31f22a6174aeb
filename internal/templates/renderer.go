// Package templates implements the Template Renderer (C5, §4): render
// named prompt templates with a context map. No direct templating library
// exists in the teacher's own go.mod; Masterminds/sprig/v3 is pulled in
// (see DESIGN.md) because it already appears, indirectly, elsewhere in the
// retrieval pack and is the idiomatic companion to stdlib text/template for
// string-processing helpers the prompt templates below rely on
// (trimming, title-casing, default values).
package templates

import (
	"bytes"
	"fmt"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

type Renderer struct {
	mu   sync.RWMutex
	tmpl *template.Template
}

// New parses every *.tmpl-shaped entry in named (name -> template source)
// into one shared *template.Template, the way a small prompt-template set
// is typically compiled once at startup.
func New(named map[string]string) (*Renderer, error) {
	root := template.New("root").Funcs(sprig.TxtFuncMap())
	for name, src := range named {
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("parse template %q: %w", name, err)
		}
	}
	return &Renderer{tmpl: root}, nil
}

// Render executes the named template against ctx and returns the result.
func (r *Renderer) Render(name string, ctx map[string]any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, ctx); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// Add registers or replaces a single named template at runtime, so the
// system-prompt sections composed in §4.5 step 3 can be swapped without a
// full reload.
func (r *Renderer) Add(name, src string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.tmpl.New(name).Parse(src)
	if err != nil {
		return fmt.Errorf("add template %q: %w", name, err)
	}
	return nil
}
