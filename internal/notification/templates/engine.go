package templates

import (
	"bytes"
	"context"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	texttmpl "text/template"
)

// Config controls how the engine loads templates. With Dir set, templates are
// read from <Dir>/<id>.tmpl; Reload reparses them on every render.
type Config struct {
	Dir    string
	Reload bool
}

// Rendered is the materialized content of one email.
type Rendered struct {
	Subject   string
	EmailHTML string
	EmailText string
}

// Handle is a typed handle for a template id.
type Handle[T any] struct {
	id string
}

// Expect creates a typed handle for a template id such as "otp.confirm_signup".
func Expect[T any](id string) Handle[T] { return Handle[T]{id: id} }

func (h Handle[T]) ID() string { return h.id }

type Renderer interface {
	RenderAny(ctx context.Context, id string, data any) (Rendered, error)
}

type Engine struct {
	cfg   Config
	log   *slog.Logger
	fs    fs.FS
	mu    sync.RWMutex
	cache map[string]*compiled
}

type compiled struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return &Engine{
		cfg:   cfg,
		log:   log,
		fs:    EmbeddedFS,
		cache: make(map[string]*compiled),
	}
}

// Render enforces the data type bound to the handle.
func Render[T any](ctx context.Context, e *Engine, h Handle[T], data T) (Rendered, error) {
	return e.RenderAny(ctx, h.ID(), data)
}

// RenderAny renders the subject, email_text and email_html blocks of a template.
// subject and email_html are required.
func (e *Engine) RenderAny(_ context.Context, id string, data any) (Rendered, error) {
	c, err := e.getCompiled(id)
	if err != nil {
		return Rendered{}, err
	}

	var out Rendered
	textBlocks := []struct {
		name     string
		dst      *string
		required bool
	}{
		{"subject", &out.Subject, true},
		{"email_text", &out.EmailText, false},
	}
	for _, b := range textBlocks {
		if c.text.Lookup(b.name) == nil {
			if b.required {
				return Rendered{}, fmt.Errorf("template %s: missing %s block", id, b.name)
			}
			continue
		}
		var buf bytes.Buffer
		if err := c.text.ExecuteTemplate(&buf, b.name, data); err != nil {
			return Rendered{}, fmt.Errorf("render %s: %w", b.name, err)
		}
		*b.dst = buf.String()
	}

	if c.html.Lookup("email_html") == nil {
		return Rendered{}, fmt.Errorf("template %s: missing email_html block", id)
	}
	var buf bytes.Buffer
	if err := c.html.ExecuteTemplate(&buf, "email_html", data); err != nil {
		return Rendered{}, fmt.Errorf("render email_html: %w", err)
	}
	out.EmailHTML = buf.String()
	return out, nil
}

func (e *Engine) getCompiled(id string) (*compiled, error) {
	if e.cfg.Dir != "" && e.cfg.Reload {
		return e.parse(id)
	}

	e.mu.RLock()
	cached, ok := e.cache[id]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	c, err := e.parse(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[id] = c
	e.mu.Unlock()
	return c, nil
}

func (e *Engine) parse(id string) (*compiled, error) {
	var (
		b   []byte
		err error
	)
	if e.cfg.Dir != "" {
		b, err = os.ReadFile(filepath.Join(e.cfg.Dir, id+".tmpl"))
	} else {
		b, err = fs.ReadFile(e.fs, "files/"+id+".tmpl")
	}
	if err != nil {
		return nil, fmt.Errorf("read template %q: %w", id, err)
	}

	tText, err := texttmpl.New(id).Option("missingkey=error").Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse text blocks (%s): %w", id, err)
	}
	tHTML, err := htmltmpl.New(id).Option("missingkey=error").Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse html block (%s): %w", id, err)
	}
	return &compiled{text: tText, html: tHTML}, nil
}
