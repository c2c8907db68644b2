package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

// maxSanitizedLen keeps "<uuid>-<name>" inside the image_filename column.
const maxSanitizedLen = 100

// IsAllowed reports whether filename has an image extension we accept.
func IsAllowed(filename string) bool {
	if !strings.Contains(filename, ".") {
		return false
	}
	return allowedExtensions[extension(filename)]
}

// extension is the lower-cased suffix after the last dot, or "".
func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// Sanitize reduces filename to a single safe path segment: directories are
// dropped, accents folded to ASCII, whitespace becomes '_' and anything
// outside [A-Za-z0-9._-] is removed.
func Sanitize(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}

	var b strings.Builder
	for _, r := range norm.NFKD.String(filename) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if len(out) > maxSanitizedLen {
		out = out[len(out)-maxSanitizedLen:]
	}
	return out
}

// Store writes uploaded images into one directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save copies src under a fresh "<uuid>-<sanitized name>" and returns that
// name. Two uploads never share a file, and the stored name keeps the
// original extension.
func (s *Store) Save(src io.Reader, original string) (string, error) {
	name := uuid.NewString()
	if safe := Sanitize(original); safe != "" {
		name += "-" + safe
	}
	if ext := extension(original); ext != "" && !strings.HasSuffix(strings.ToLower(name), "."+ext) {
		name += "." + ext
	}

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return name, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid upload name %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
