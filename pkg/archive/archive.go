package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"google.golang.org/api/option"
)

// Archive closes over where rendered reports are kept
type Archive interface {
	Store(ctx context.Context, name string, data []byte) error
}

var (
	// ErrNotExist is returned when loading a report that was never stored.
	ErrNotExist = errors.New("report does not exist")
	// ErrInvalidName is returned for names that are not a single path element.
	ErrInvalidName = errors.New("invalid report name")
)

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// objectWriter closes over how we open an object in a bucket for writing
type objectWriter interface {
	newWriter(ctx context.Context, name, contentType string) io.WriteCloser
}

type bucketHandle struct {
	bucket *storage.BucketHandle
}

func (b bucketHandle) newWriter(ctx context.Context, name, contentType string) io.WriteCloser {
	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

// BucketArchive stores reports as objects in a GCS bucket.
type BucketArchive struct {
	bucket      objectWriter
	prefix      string
	contentType string
}

var _ Archive = &BucketArchive{}

func NewBucketArchive(bucket *storage.BucketHandle, prefix, contentType string) *BucketArchive {
	return &BucketArchive{bucket: bucketHandle{bucket: bucket}, prefix: prefix, contentType: contentType}
}

// NewBucketArchiveFromCredentials connects to GCS with the credentials file, or with the
// default credentials when the file is empty.
func NewBucketArchiveFromCredentials(ctx context.Context, bucket, prefix, credentialsFile, contentType string) (*BucketArchive, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not initialize GCS client: %w", err)
	}
	return NewBucketArchive(client.Bucket(bucket), prefix, contentType), nil
}

func (b *BucketArchive) Store(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	object := path.Join(b.prefix, name)
	w := b.bucket.newWriter(ctx, object, b.contentType)
	if _, err := w.Write(data); err != nil {
		// closing reports the same failure, the object is not created
		_ = w.Close()
		return fmt.Errorf("could not write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("could not finalize %s: %w", object, err)
	}
	return nil
}

// LocalArchive stores reports in a directory.
type LocalArchive struct {
	fs  afero.Fs
	dir string
}

var _ Archive = &LocalArchive{}

func NewLocalArchive(fs afero.Fs, dir string) *LocalArchive {
	return &LocalArchive{fs: fs, dir: dir}
}

func (l *LocalArchive) Store(_ context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	target := filepath.Join(l.dir, name)
	if err := l.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("could not create %s: %w", filepath.Dir(target), err)
	}
	if err := afero.WriteFile(l.fs, target, data, 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", target, err)
	}
	return nil
}

// Load returns a stored report.
func (l *LocalArchive) Load(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	target := filepath.Join(l.dir, name)
	exists, err := afero.Exists(l.fs, target)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	return afero.ReadFile(l.fs, target)
}
