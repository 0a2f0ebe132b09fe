package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/vmarkelov/talkwire-server/internal/store"
)

// ErrUnsupportedType is returned when the sniffed content type is not
// on the allow-list.
var ErrUnsupportedType = errors.New("unsupported attachment type")

// Kind is a blob category; it selects the target subdirectory.
type Kind string

const (
	KindMessage Kind = "messages"
	KindAvatar  Kind = "avatars"
)

// Allowed content types. Detection happens by sniffing the stored
// bytes, never by trusting the client's filename or header.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/octet-stream":     true,
}

// Store persists attachment blobs on the local filesystem under a
// single base directory, one subdirectory per Kind. Stored files get
// uuid names; the client filename only contributes the extension.
type Store struct {
	baseDir string
}

// New creates the base directory tree and returns a blob store.
func New(baseDir string) (*Store, error) {
	for _, kind := range []Kind{KindMessage, KindAvatar} {
		if err := os.MkdirAll(filepath.Join(baseDir, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	return &Store{baseDir: baseDir}, nil
}

// Save writes the blob to disk, sniffs its content type, and returns
// the web path (`/uploads/<kind>/<uuid><ext>`) plus the attachment
// classification. A disallowed type removes the file and returns
// ErrUnsupportedType.
func (s *Store) Save(kind Kind, filename string, r io.Reader) (string, store.AttachmentKind, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	dst := filepath.Join(s.baseDir, string(kind), name)

	f, err := os.Create(dst)
	if err != nil {
		return "", store.AttachmentNone, fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", store.AttachmentNone, fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", store.AttachmentNone, fmt.Errorf("close blob: %w", err)
	}

	mtype, err := mimetype.DetectFile(dst)
	if err != nil {
		os.Remove(dst)
		return "", store.AttachmentNone, fmt.Errorf("sniff blob: %w", err)
	}
	if !allowedTypes[mtype.String()] {
		os.Remove(dst)
		return "", store.AttachmentNone, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	attKind := store.AttachmentFile
	if strings.HasPrefix(mtype.String(), "image/") {
		attKind = store.AttachmentImage
	}
	return "/uploads/" + string(kind) + "/" + name, attKind, nil
}

// Remove deletes the blob behind a web path previously returned by
// Save. Paths outside /uploads/ are refused; a missing blob is not an
// error.
func (s *Store) Remove(webPath string) error {
	rel, ok := strings.CutPrefix(webPath, "/uploads/")
	if !ok || strings.Contains(rel, "..") {
		return fmt.Errorf("not an upload path: %s", webPath)
	}
	if err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(rel))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// BaseDir returns the directory served under /uploads/.
func (s *Store) BaseDir() string {
	return s.baseDir
}
