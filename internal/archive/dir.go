package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type dirBackend struct {
	root    string
	baseURL string
}

// NewDir archives into a local directory. Locators are baseURL/name when
// baseURL is set, otherwise file paths.
func NewDir(root, baseURL string, log *slog.Logger) *Saver {
	return newSaver(&dirBackend{root: root, baseURL: strings.TrimRight(baseURL, "/")}, log)
}

func (d *dirBackend) put(ctx context.Context, name string, body []byte) (string, error) {
	full := filepath.Join(d.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", ErrCollision
	}
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if d.baseURL != "" {
		return d.baseURL + "/" + name, nil
	}
	return full, nil
}
