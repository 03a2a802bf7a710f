// Package storage is the blob store boundary. Callers persist the returned URL and the
// stable key; a URL may be regenerated from the key, the key never changes.
package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"nudfans-backend/models"
)

type Object struct {
	Key  string
	URL  string
	Type models.MediaType
}

type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error)
	Delete(ctx context.Context, key string, mediaType models.MediaType) error
	// PreviewURL returns a blurred low resolution rendition that is safe to show on a
	// locked post.
	PreviewURL(key string, mediaType models.MediaType) string
}

const (
	MaxImageBytes = 10 << 20
	MaxVideoBytes = 200 << 20
)

var ErrUnsupportedType = errors.New("unsupported media type")

var allowedTypes = map[string]models.MediaType{
	"image/jpeg":      models.MediaImage,
	"image/png":       models.MediaImage,
	"image/gif":       models.MediaImage,
	"image/webp":      models.MediaImage,
	"video/mp4":       models.MediaVideo,
	"video/webm":      models.MediaVideo,
	"video/quicktime": models.MediaVideo,
}

// Sniff reads the head of r to detect its content type, the same way the upload handlers
// check a file signature rather than trusting the extension. The returned reader replays
// the consumed bytes.
func Sniff(r io.Reader) (io.Reader, string, models.MediaType, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", "", fmt.Errorf("reading upload: %w", err)
	}
	head = head[:n]
	contentType := http.DetectContentType(head)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	mediaType, ok := allowedTypes[contentType]
	if !ok {
		return nil, contentType, "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return io.MultiReader(bytes.NewReader(head), r), contentType, mediaType, nil
}

// Memory keeps blobs in process. It backs local development without Cloudinary
// credentials and the tests. Its URLs are placeholders under baseURL; nothing serves them.
// Preview URLs use an opaque token so the key of the original cannot be read from them.
type Memory struct {
	mu      sync.Mutex
	baseURL string
	salt    []byte
	objects map[string][]byte
}

func NewMemory(baseURL string) *Memory {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return &Memory{baseURL: strings.TrimRight(baseURL, "/"), salt: salt, objects: map[string][]byte{}}
}

func (m *Memory) Put(_ context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return &Object{Key: key, URL: m.baseURL + "/full/" + key, Type: allowedTypes[contentType]}, nil
}

func (m *Memory) Delete(_ context.Context, key string, _ models.MediaType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) PreviewURL(key string, _ models.MediaType) string {
	mac := hmac.New(sha256.New, m.salt)
	mac.Write([]byte(key))
	return m.baseURL + "/preview/" + hex.EncodeToString(mac.Sum(nil))
}

func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}
