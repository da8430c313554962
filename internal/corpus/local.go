package corpus

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xxxsen/ragchat/internal/config"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

type localSource struct{}

func init() {
	Register("file", func(cfg config.CorpusConfig) (Source, error) {
		return &localSource{}, nil
	})
}

// Walk visits a single file, or every regular file below a directory. Names
// are slash separated and relative to the directory.
func (s *localSource) Walk(ctx context.Context, location string, fn func(name string, r io.Reader) error) error {
	info, err := os.Stat(location)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("corpus %s: %w", location, appErr.ErrNotFound)
		}
		return err
	}
	if !info.IsDir() {
		return s.visit(location, filepath.Base(location), fn)
	}
	return filepath.WalkDir(location, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(location, p)
		if err != nil {
			return err
		}
		return s.visit(p, filepath.ToSlash(rel), fn)
	})
}

func (s *localSource) visit(p string, name string, fn func(name string, r io.Reader) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(name, f)
}
