// Package blob stores generated binary content, such as images returned
// inline by a provider, on the local filesystem and serves as the media
// library for image edits.
//
// Blobs are written under <dir>/<target>/<uuid><ext>. Each blob has a JSON
// sidecar (<name>.json) holding its MIME type, purpose, metadata and, for
// short-lived uploads, the expiry used by Sweep.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/brubru/aiengine/pkg/debug"
	"github.com/brubru/aiengine/pkg/query"
	"github.com/brubru/aiengine/pkg/storage"
)

// ErrInvalidID is returned for media IDs that do not name a blob.
var ErrInvalidID = errors.New("invalid media id")

// meta is the sidecar content of a blob.
type meta struct {
	MimeType  string            `json:"mimeType"`
	Purpose   string            `json:"purpose,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
}

// Store is a filesystem storage.BlobStore.
type Store struct {
	dir     string
	baseURL string
	now     func() time.Time
}

var _ storage.BlobStore = (*Store)(nil)

// New creates a store rooted at dir. Returned URLs are baseURL joined with
// the blob path; without a baseURL they are file:// URLs.
func New(dir, baseURL string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving blob directory: %w", err)
	}
	for _, target := range []string{storage.TargetUploads, storage.TargetLibrary} {
		if err := os.MkdirAll(filepath.Join(abs, target), 0o755); err != nil {
			return nil, fmt.Errorf("creating blob directory: %w", err)
		}
	}
	return &Store{dir: abs, baseURL: strings.TrimSuffix(baseURL, "/"), now: time.Now}, nil
}

// Store writes b and returns its URL.
func (s *Store) Store(ctx context.Context, b storage.Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := b.Target
	if target == "" {
		target = storage.TargetUploads
	}
	if target != storage.TargetUploads && target != storage.TargetLibrary {
		return "", fmt.Errorf("unknown blob target %q", target)
	}

	name := uuid.NewString() + extension(b.MimeType)
	path := filepath.Join(s.dir, target, name)

	m := meta{
		MimeType:  b.MimeType,
		Purpose:   b.Purpose,
		Metadata:  b.Metadata,
		CreatedAt: s.now().UTC(),
	}
	if target == storage.TargetUploads && b.TTL > 0 {
		exp := m.CreatedAt.Add(b.TTL)
		m.ExpiresAt = &exp
	}
	sidecar, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding blob metadata: %w", err)
	}

	if err := os.WriteFile(path, b.Data, 0o644); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := os.WriteFile(path+".json", sidecar, 0o644); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing blob metadata: %w", err)
	}

	debug.Log(debug.CategoryStorage, "blob stored", "target", target, "name", name, "bytes", len(b.Data))
	return s.url(target, name), nil
}

// LoadMedia returns the library blob id (its file name) as a file for an
// image edit.
func (s *Store) LoadMedia(_ context.Context, id string) (*query.DroppedFile, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") || strings.HasSuffix(id, ".json") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	path := filepath.Join(s.dir, storage.TargetLibrary, id)

	var m meta
	if data, err := os.ReadFile(path + ".json"); err == nil {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding blob metadata: %w", err)
		}
	}

	f, err := query.FromPath(path, "", m.MimeType)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Sweep deletes the uploads that expired before now and returns how many
// were removed. Removal failures are aggregated; the sweep continues past
// them.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	dir := filepath.Join(s.dir, storage.TargetUploads)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("listing uploads: %w", err)
	}

	now := s.now()
	var result *multierror.Error
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		sidecar := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(sidecar)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		var m meta
		if err := json.Unmarshal(data, &m); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		if m.ExpiresAt == nil || m.ExpiresAt.After(now) {
			continue
		}

		blobPath := strings.TrimSuffix(sidecar, ".json")
		if err := os.Remove(blobPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, err)
			continue
		}
		if err := os.Remove(sidecar); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		debug.Log(debug.CategoryStorage, "expired uploads removed", "count", removed)
	}
	return removed, result.ErrorOrNil()
}

func (s *Store) url(target, name string) string {
	if s.baseURL == "" {
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.dir, target, name))}).String()
	}
	return s.baseURL + "/" + target + "/" + name
}

// extension returns the preferred file extension of a MIME type.
func extension(mimeType string) string {
	switch mimeType {
	case "":
		return ""
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
