package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maplecart/api/internal/platform/storage"
)

// ErrInvalidDocument wraps YAML decoding failures.
var ErrInvalidDocument = errors.New("settings: invalid document")

// ObjectReader reads an object from Cloud Storage.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// Loader resolves a settings URI into a Document.
type Loader struct {
	objects  ObjectReader
	readFile func(string) ([]byte, error)
}

// Option customises the loader.
type Option func(*Loader)

// WithObjectReader enables gs:// URIs.
func WithObjectReader(reader ObjectReader) Option {
	return func(l *Loader) {
		if reader != nil {
			l.objects = reader
		}
	}
}

// WithFileReader overrides local file access (tests).
func WithFileReader(fn func(string) ([]byte, error)) Option {
	return func(l *Loader) {
		if fn != nil {
			l.readFile = fn
		}
	}
}

// NewLoader constructs a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{readFile: os.ReadFile}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load reads the document at uri. An empty uri yields an empty document so callers fall back to defaults.
func (l *Loader) Load(ctx context.Context, uri string) (Document, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Document{}, nil
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(uri, "gs://"):
		if l.objects == nil {
			return Document{}, fmt.Errorf("settings: no object reader configured for %s", uri)
		}
		bucket, object, parseErr := storage.ParseURI(uri)
		if parseErr != nil {
			return Document{}, parseErr
		}
		data, err = l.objects.ReadObject(ctx, bucket, object)
	default:
		data, err = l.readFile(strings.TrimPrefix(uri, "file://"))
	}
	if err != nil {
		return Document{}, fmt.Errorf("settings: read %s: %w", uri, err)
	}
	return Decode(data)
}

// Decode parses YAML, rejecting unknown keys so typos surface at startup.
func Decode(data []byte) (Document, error) {
	var doc Document
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}
