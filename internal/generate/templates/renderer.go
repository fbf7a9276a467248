package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/go-openapi/inflect"
)

//go:embed *.ts.tmpl
var builtin embed.FS

const templateSuffix = ".ts.tmpl"

// Built-in template names.
const (
	TemplateDataInterface = "data_interface"
	TemplateModel         = "model"
	TemplateReactiveModel = "reactive_model"
	TemplateIndex         = "index"
)

// NotFoundError reports a request for a template that neither the
// embedded set nor the override directory contains.
type NotFoundError struct {
	Name        string
	Available   []string
	Suggestions []string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("template %q not found (available: %s)",
		e.Name, strings.Join(e.Available, ", "))
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(". Did you mean: %s?", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// RenderStats are the per-instance render counters.
type RenderStats struct {
	Renders int
	Total   time.Duration
	Average time.Duration
}

// Renderer renders the embedded *.ts.tmpl templates, optionally shadowed
// by files of the same name in an override directory. Parsed templates
// are cached for the renderer's lifetime; a render call never leaks state
// into another, so concurrent renders are safe.
type Renderer struct {
	overrideDir string
	funcs       template.FuncMap

	mu      sync.Mutex
	cache   map[string]*template.Template
	renders int
	elapsed time.Duration
}

// NewRenderer creates a renderer. overrideDir may be empty; when set,
// <overrideDir>/<name>.ts.tmpl shadows the embedded template of the same
// name. The func map exposes the inflection helpers so override templates
// can derive names the same way the built-ins do.
func NewRenderer(overrideDir string) *Renderer {
	return &Renderer{
		overrideDir: overrideDir,
		funcs: template.FuncMap{
			"camelize":    inflect.CamelizeDownFirst,
			"pascalize":   inflect.Camelize,
			"pluralize":   inflect.Pluralize,
			"singularize": inflect.Singularize,
			"underscore":  inflect.Underscore,
			"dasherize":   inflect.Dasherize,
			"upper":       strings.ToUpper,
			"lower":       strings.ToLower,
			"join":        strings.Join,
		},
		cache: make(map[string]*template.Template),
	}
}

// Render executes the named template against data. The template's
// existence is checked before parsing so a bad name fails with the
// available list instead of a bare read error.
func (r *Renderer) Render(name string, data any) (string, error) {
	start := time.Now()

	tmpl, err := r.lookup(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}

	r.mu.Lock()
	r.renders++
	r.elapsed += time.Since(start)
	r.mu.Unlock()

	return buf.String(), nil
}

// Exists reports whether the named template can be rendered.
func (r *Renderer) Exists(name string) bool {
	r.mu.Lock()
	_, cached := r.cache[name]
	r.mu.Unlock()
	if cached {
		return true
	}
	_, err := r.source(name)
	return err == nil
}

// Available returns the names of every renderable template, embedded and
// override, sorted and deduplicated.
func (r *Renderer) Available() []string {
	seen := make(map[string]bool)

	entries, err := fs.ReadDir(builtin, ".")
	if err == nil {
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), templateSuffix) {
				seen[strings.TrimSuffix(e.Name(), templateSuffix)] = true
			}
		}
	}

	if r.overrideDir != "" {
		entries, err := os.ReadDir(r.overrideDir)
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), templateSuffix) {
					seen[strings.TrimSuffix(e.Name(), templateSuffix)] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Stats returns the render counters accumulated since construction.
func (r *Renderer) Stats() RenderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RenderStats{Renders: r.renders, Total: r.elapsed}
	if r.renders > 0 {
		s.Average = r.elapsed / time.Duration(r.renders)
	}
	return s
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	r.mu.Lock()
	if t, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return t, nil
	}
	r.mu.Unlock()

	src, err := r.source(name)
	if err != nil {
		return nil, err
	}

	t, err := template.New(name).Funcs(r.funcs).Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}

	r.mu.Lock()
	r.cache[name] = t
	r.mu.Unlock()
	return t, nil
}

// source resolves a template body, override directory first.
func (r *Renderer) source(name string) (string, error) {
	if r.overrideDir != "" {
		raw, err := os.ReadFile(filepath.Join(r.overrideDir, name+templateSuffix))
		if err == nil {
			return string(raw), nil
		}
	}

	raw, err := builtin.ReadFile(name + templateSuffix)
	if err != nil {
		available := r.Available()
		return "", &NotFoundError{
			Name:        name,
			Available:   available,
			Suggestions: suggest(name, available),
		}
	}
	return string(raw), nil
}

// suggest returns up to three candidates related to name by substring
// containment in either direction, case-insensitive.
func suggest(name string, available []string) []string {
	needle := strings.ToLower(name)
	var out []string
	for _, cand := range available {
		lc := strings.ToLower(cand)
		if strings.Contains(lc, needle) || strings.Contains(needle, lc) {
			out = append(out, cand)
			if len(out) == 3 {
				break
			}
		}
	}
	return out
}
