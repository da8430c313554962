package corpus

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

// Source enumerates the documents found at a location. Names passed to fn
// are stable across runs since they become document ids.
type Source interface {
	Walk(ctx context.Context, location string, fn func(name string, r io.Reader) error) error
}

type Factory func(cfg config.CorpusConfig) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(scheme string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(scheme))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func splitLocation(location string) (string, string) {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return "file", location
	}
	return strings.ToLower(scheme), rest
}

type Loader struct {
	cfg        config.CorpusConfig
	extensions map[string]struct{}
}

func NewLoader(cfg config.CorpusConfig) *Loader {
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Loader{cfg: cfg, extensions: exts}
}

func (l *Loader) accept(name string) bool {
	if len(l.extensions) == 0 {
		return true
	}
	_, ok := l.extensions[strings.ToLower(path.Ext(name))]
	return ok
}

// Load reads every accepted document at location, which is a local path or
// a scheme-qualified url such as s3://bucket/prefix. Markdown is reduced to
// plain text. Documents come back sorted by source.
func (l *Loader) Load(ctx context.Context, location string) ([]model.Document, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("corpus location is required: %w", appErr.ErrInvalid)
	}
	scheme, rest := splitLocation(location)
	registryMu.RLock()
	factory := registry[scheme]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported corpus scheme %q: %w", scheme, appErr.ErrInvalid)
	}
	src, err := factory(l.cfg)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("location", location))
	var docs []model.Document
	err = src.Walk(ctx, rest, func(name string, r io.Reader) error {
		if !l.accept(name) {
			logger.Debug("skip file by extension", zap.String("name", name))
			return nil
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		text := string(raw)
		if isMarkdown(name) {
			text = PlainText(raw)
		}
		docs = append(docs, model.NewDocument(name, text))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Source < docs[j].Source
	})
	return docs, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
