// Package template stores named HTML email templates and renders them
// with Go templates plus the sprig function map. Parsed templates are
// cached with a TTL; the cache entry is invalidated when the template is
// deleted.
package template

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"

	"github.com/mailfleet/mailfleet/pkg/email"
	"github.com/mailfleet/mailfleet/pkg/filestore"
	"github.com/mailfleet/mailfleet/pkg/metrics"
)

const cacheTTL = 30 * time.Minute

// Template is a stored template row. Path is "bucket/filename" in the
// file store.
type Template struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Path string `json:"path" db:"path"`
	Size int    `json:"size" db:"size"`
}

// Repository persists template rows.
type Repository interface {
	SaveTemplate(ctx context.Context, t *Template) error
	GetTemplateByName(ctx context.Context, name string) (*Template, error)
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	DeleteTemplate(ctx context.Context, id int64) error
	ListTemplates(ctx context.Context) ([]Template, error)
}

type cacheEntry struct {
	tmpl    *template.Template
	expires time.Time
}

// Service owns template CRUD and rendering.
type Service struct {
	repo   Repository
	store  filestore.Store
	bucket string
	log    *zap.SugaredLogger

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewService creates a template service storing template files in the
// given file-store bucket.
func NewService(repo Repository, store filestore.Store, bucket string, log *zap.SugaredLogger) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		bucket: bucket,
		log:    log.Named("template-service"),
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

// Render produces the template output for the given property map. A
// missing template unwraps to email.ErrTemplateNotFound; parse and
// execution failures are field-tagged validation errors.
func (s *Service) Render(ctx context.Context, name string, properties map[string]any) (string, error) {
	tmpl, err := s.lookup(ctx, name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, properties); err != nil {
		s.log.Errorw("Failed to render template", "template", name, "error", err)
		ve := &email.ValidationError{}
		ve.Add("TemplateContent", fmt.Sprintf("failed to render template %q: %v", name, err))
		return "", ve
	}

	s.log.Debugw("Rendered template", "template", name)
	return buf.String(), nil
}

func (s *Service) lookup(ctx context.Context, name string) (*template.Template, error) {
	s.mu.Lock()
	entry, ok := s.cache[name]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expires) {
		return entry.tmpl, nil
	}

	row, err := s.repo.GetTemplateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &email.TemplateNotFoundError{Name: name}
	}

	data, err := s.store.Download(ctx, s.bucket, path.Base(row.Path))
	if err != nil {
		return nil, err
	}

	tmpl, err := parse(name, string(data))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[name] = cacheEntry{tmpl: tmpl, expires: s.now().Add(cacheTTL)}
	s.mu.Unlock()
	s.log.Debugw("Cached template", "template", name)

	return tmpl, nil
}

// Create validates the template syntax, uploads the content and persists
// the row. The name must be unique.
func (s *Service) Create(ctx context.Context, name, fileName string, content []byte) (*Template, error) {
	if err := validateCreate(name, content); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetTemplateByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		ve := &email.ValidationError{}
		ve.Add("Name", fmt.Sprintf("template with name %q already exists", name))
		return nil, ve
	}

	if _, err := parse(name, string(content)); err != nil {
		return nil, err
	}

	objectName := name + path.Ext(fileName)
	if err := s.store.Upload(ctx, s.bucket, objectName, content, "text/html"); err != nil {
		return nil, err
	}

	row := &Template{
		Name: name,
		Path: s.bucket + "/" + objectName,
		Size: len(content),
	}
	if err := s.repo.SaveTemplate(ctx, row); err != nil {
		return nil, err
	}

	metrics.TemplateOperations.WithLabelValues("create").Inc()
	s.log.Infow("Created email template", "template", name, "size", row.Size)
	return row, nil
}

// Delete removes the stored file, the row and the cache entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	row, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return &email.TemplateNotFoundError{Name: fmt.Sprintf("id %d", id)}
	}

	if err := s.store.Remove(ctx, s.bucket, path.Base(row.Path)); err != nil {
		return err
	}
	if err := s.repo.DeleteTemplate(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, row.Name)
	s.mu.Unlock()

	metrics.TemplateOperations.WithLabelValues("delete").Inc()
	s.log.Infow("Deleted email template", "template", row.Name)
	return nil
}

// List returns all stored templates ordered by name.
func (s *Service) List(ctx context.Context) ([]Template, error) {
	metrics.TemplateOperations.WithLabelValues("list").Inc()
	return s.repo.ListTemplates(ctx)
}

func parse(name, content string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(sprig.FuncMap()).Parse(normalize(content))
	if err != nil {
		ve := &email.ValidationError{}
		ve.Add("TemplateContent", fmt.Sprintf("template %q has syntax errors: %v", name, err))
		return nil, ve
	}
	return tmpl, nil
}

// bareIdentPattern matches an action whose whole body is one bare
// identifier, e.g. {{ name }}.
var bareIdentPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

var templateKeywords = map[string]bool{
	"if": true, "else": true, "end": true, "range": true, "with": true,
	"template": true, "block": true, "define": true, "break": true,
	"continue": true, "nil": true, "true": true, "false": true,
}

// normalize rewrites bare property interpolations ({{ name }}) to field
// accesses ({{ .name }}) so templates written in that convention render
// against the property map. Keywords and actions with arguments are left
// untouched.
func normalize(content string) string {
	return bareIdentPattern.ReplaceAllStringFunc(content, func(m string) string {
		ident := bareIdentPattern.FindStringSubmatch(m)[1]
		if templateKeywords[ident] {
			return m
		}
		return "{{ ." + ident + " }}"
	})
}

func validateCreate(name string, content []byte) error {
	ve := &email.ValidationError{}
	if strings.TrimSpace(name) == "" {
		ve.Add("Name", "template name is required")
	}
	if len(content) == 0 {
		ve.Add("File", "template file is required")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}
