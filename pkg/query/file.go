package query

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/brubru/aiengine/pkg/api"
)

// FileType tells what a DroppedFile holds.
type FileType string

const (
	FileRefID FileType = "refId"
	FileURL   FileType = "url"
	FileData  FileType = "data"
)

// FilePurpose tells what a DroppedFile is used for.
type FilePurpose string

const (
	PurposeAssistantIn FilePurpose = "assistant-in"
	PurposeVision      FilePurpose = "vision"
	PurposeFiles       FilePurpose = "files"
)

// maxRemoteFileSize bounds the download of URL-backed files.
const maxRemoteFileSize = 32 << 20

var remoteFileClient = &http.Client{Timeout: 30 * time.Second}

// DroppedFile is a file attached to a query. It is either a reference ID,
// a remote URL, or inline data.
type DroppedFile struct {
	typ          FileType
	purpose      FilePurpose
	mimeType     string
	fileID       string
	url          string
	data         []byte
	originalPath string
}

// NewDroppedFile validates the type and purpose of a file.
func NewDroppedFile(typ FileType, purpose FilePurpose, mimeType string) (*DroppedFile, error) {
	switch typ {
	case "", FileRefID, FileURL, FileData:
	default:
		return nil, api.NewValidationError("file", fmt.Sprintf("the file type can only be refId, url or data, got %q", typ))
	}
	switch purpose {
	case "", PurposeAssistantIn, PurposeVision, PurposeFiles:
	default:
		return nil, api.NewValidationError("file", fmt.Sprintf("the file purpose can only be assistant-in, vision or files, got %q", purpose))
	}
	return &DroppedFile{typ: typ, purpose: purpose, mimeType: mimeType}, nil
}

// FromURL references a remote file. The MIME type is guessed from the URL
// path when not given.
func FromURL(rawURL string, purpose FilePurpose, mimeType, fileID string) (*DroppedFile, error) {
	if mimeType == "" {
		mimeType = mimeFromName(urlPath(rawURL))
	}
	f, err := NewDroppedFile(FileURL, purpose, mimeType)
	if err != nil {
		return nil, err
	}
	f.url = rawURL
	f.fileID = fileID
	return f, nil
}

// FromData wraps inline bytes.
func FromData(data []byte, purpose FilePurpose, mimeType string) (*DroppedFile, error) {
	f, err := NewDroppedFile(FileData, purpose, mimeType)
	if err != nil {
		return nil, err
	}
	f.data = data
	return f, nil
}

// FromPath reads a local file. The MIME type is guessed from the extension,
// then from the content.
func FromPath(p string, purpose FilePurpose, mimeType string) (*DroppedFile, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	if mimeType == "" {
		mimeType = mimeFromName(p)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	f, err := FromData(data, purpose, mimeType)
	if err != nil {
		return nil, err
	}
	f.originalPath = p
	return f, nil
}

// FromRefID references a file already uploaded to the provider.
func FromRefID(id string, purpose FilePurpose) (*DroppedFile, error) {
	f, err := NewDroppedFile(FileRefID, purpose, "")
	if err != nil {
		return nil, err
	}
	f.fileID = id
	return f, nil
}

func (f *DroppedFile) Type() FileType       { return f.typ }
func (f *DroppedFile) Purpose() FilePurpose { return f.purpose }
func (f *DroppedFile) MimeType() string     { return f.mimeType }
func (f *DroppedFile) FileID() string       { return f.fileID }

// IsImage reports whether the MIME type is an image type.
func (f *DroppedFile) IsImage() bool {
	return strings.Contains(f.mimeType, "image")
}

// URL returns the remote URL of a URL-backed file.
func (f *DroppedFile) URL() (string, error) {
	if f.typ != FileURL {
		return "", fmt.Errorf("the file is not a URL")
	}
	return f.url, nil
}

// Data returns the file bytes, downloading URL-backed files once. Only
// http and https URLs are fetched.
func (f *DroppedFile) Data(ctx context.Context) ([]byte, error) {
	switch f.typ {
	case FileData:
		return f.data, nil
	case FileURL:
		if f.data != nil {
			return f.data, nil
		}
		data, err := fetchRemote(ctx, f.url)
		if err != nil {
			return nil, err
		}
		f.data = data
		return data, nil
	default:
		return nil, fmt.Errorf("the file is not data or a URL")
	}
}

// Base64 returns the file bytes base64-encoded.
func (f *DroppedFile) Base64(ctx context.Context) (string, error) {
	data, err := f.Data(ctx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// InlineBase64URL returns a data URL such as "data:image/png;base64,...".
func (f *DroppedFile) InlineBase64URL(ctx context.Context) (string, error) {
	b64, err := f.Base64(ctx)
	if err != nil {
		return "", err
	}
	return "data:" + f.mimeType + ";base64," + b64, nil
}

// Filename returns a name for the file: the basename of its original path
// or URL, or a generic name derived from the MIME type.
func (f *DroppedFile) Filename() string {
	if f.originalPath != "" {
		return filepath.Base(f.originalPath)
	}
	switch f.typ {
	case FileURL:
		return path.Base(urlPath(f.url))
	case FileData:
		if f.mimeType != "" {
			parts := strings.Split(f.mimeType, "/")
			return "file." + parts[len(parts)-1]
		}
		return "file.bin"
	}
	return "file"
}

func fetchRemote(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing file URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %q; only http and https are allowed", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := remoteFileClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("downloading file: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRemoteFileSize))
}

func urlPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	return rawURL
}

func mimeFromName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.Index(t, ";"); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return ""
}
