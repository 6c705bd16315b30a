// Package media stores uploaded issue photos.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/utilities"
)

// MaxSize is the largest accepted upload in bytes.
const MaxSize = 5 << 20

// URLPrefix is the public path under which saved files are served.
const URLPrefix = "/uploads/"

var allowed = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Store persists a file and returns a reference usable as Issue.ImageURL.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Disk writes files into a local directory.
type Disk struct {
	Dir string
}

func DiskFromEnv() *Disk {
	return &Disk{Dir: utilities.GetEnv("UPLOAD_DIR", "uploads")}
}

// Save rejects files with a disallowed extension or over MaxSize with a
// validation error. Partially written files are removed.
func (d *Disk) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowed[ext] {
		return "", apperror.Validation("only jpg, jpeg and png images are allowed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := utilities.NewKSUID() + ext
	path := filepath.Join(d.Dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxSize {
		err = apperror.Validation("image exceeds %d bytes", MaxSize)
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, apperror.ErrValidation) {
			return "", err
		}
		return "", fmt.Errorf("write upload: %w", err)
	}
	return URLPrefix + name, nil
}
