package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestLoader() *Loader {
	return NewLoader(config.CorpusConfig{Extensions: []string{".txt", "md"}})
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hours.txt", "The library opens at 8am.")
	writeFile(t, dir, "guides/programs.md", "# Programs\n\nWe offer **data science**.")
	writeFile(t, dir, "logo.png", "\x89PNG")

	docs, err := newTestLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "guides/programs.md", docs[0].Source)
	require.Equal(t, "Programs\n\nWe offer data science.", docs[0].Text)
	require.Equal(t, "hours.txt", docs[1].Source)
	require.Equal(t, model.DocumentID("hours.txt"), docs[1].ID)

	again, err := newTestLoader().Load(context.Background(), "file://"+dir)
	require.NoError(t, err)
	require.Equal(t, docs, again)
}

func TestLoadSingleFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "faq.txt", "Parking is free on weekends.")
	docs, err := newTestLoader().Load(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "faq.txt", docs[0].Source)
	require.Equal(t, "Parking is free on weekends.", docs[0].Text)
}

func TestLoadErrors(t *testing.T) {
	l := newTestLoader()
	_, err := l.Load(context.Background(), "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = l.Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.True(t, appErr.IsNotFound(err))
	_, err = l.Load(context.Background(), "ftp://host/dir")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = l.Load(context.Background(), "s3://bucket/prefix")
	require.True(t, appErr.IsConfiguration(err))
}

func TestLoadCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestLoader().Load(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPlainText(t *testing.T) {
	md := "# Title\n\nFirst line\nsecond line with `code`.\n\n- one\n- two\n\n---\n\n```go\nfmt.Println(1)\n```\n"
	require.Equal(t, "Title\n\nFirst line second line with code.\n\none\ntwo\n\nfmt.Println(1)", PlainText([]byte(md)))
}

func TestBuildEndpoint(t *testing.T) {
	require.Equal(t, "http://minio:9000", buildEndpoint("minio:9000", false))
	require.Equal(t, "https://s3.example.com", buildEndpoint("s3.example.com", true))
	require.Equal(t, "http://x", buildEndpoint("http://x", true))
}
