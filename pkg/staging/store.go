// Package staging - чтение входных файлов сущностей и запись выходных файлов
// по URI: путь в файловой системе, file:// или s3://
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound - файл или объект не существует
var ErrNotFound = errors.New("file or object does not exist")

// Store открывает и создает файлы по URI.
// Без клиента S3 URI вида s3:// отклоняются.
type Store struct {
	s3       *s3.Client
	uploader *manager.Uploader
}

// NewStore создает хранилище. client может быть nil.
func NewStore(client *s3.Client) *Store {
	st := &Store{s3: client}
	if client != nil {
		st.uploader = manager.NewUploader(client)
	}
	return st
}

type location struct {
	scheme string // "file" или "s3"
	path   string // локальный путь (file)
	bucket string // s3
	key    string // s3
}

func parse(uri string) (location, error) {
	switch {
	case strings.HasPrefix(uri, "s3://"):
		u, err := url.Parse(uri)
		if err != nil {
			return location{}, fmt.Errorf("invalid s3 uri %s: %w", uri, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return location{}, fmt.Errorf("invalid s3 uri %s: bucket and key are required", uri)
		}
		return location{scheme: "s3", bucket: u.Host, key: key}, nil
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return location{}, fmt.Errorf("invalid file uri %s: %w", uri, err)
		}
		return location{scheme: "file", path: u.Path}, nil
	case strings.Contains(uri, "://"):
		return location{}, fmt.Errorf("unsupported uri scheme: %s", uri)
	default:
		return location{scheme: "file", path: uri}, nil
	}
}

// LocalPath возвращает путь файловой системы для file:// и обычных путей
func LocalPath(uri string) (string, bool) {
	loc, err := parse(uri)
	if err != nil || loc.scheme != "file" {
		return "", false
	}
	return loc.path, true
}

// Join добавляет имя файла к каталогу staging
func Join(dir, name string) string {
	if strings.Contains(dir, "://") {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// Open открывает файл на чтение
func (st *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := parse(uri)
	if err != nil {
		return nil, err
	}

	if loc.scheme == "file" {
		f, err := os.Open(loc.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
			}
			return nil, fmt.Errorf("failed to open %s: %w", uri, err)
		}
		return f, nil
	}

	if st.s3 == nil {
		return nil, fmt.Errorf("s3 client is not configured for %s", uri)
	}
	out, err := st.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.bucket),
		Key:    aws.String(loc.key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		var noBucket *s3types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	return out.Body, nil
}

// Writer - файл, открытый на запись. Abort отменяет запись:
// локальный файл удаляется, загрузка в s3 прерывается.
type Writer interface {
	io.WriteCloser
	Abort(cause error) error
}

// Create создает файл на запись. Для s3 данные загружаются потоком,
// объект появляется после успешного Close.
func (st *Store) Create(ctx context.Context, uri string) (Writer, error) {
	loc, err := parse(uri)
	if err != nil {
		return nil, err
	}

	if loc.scheme == "file" {
		if err := os.MkdirAll(filepath.Dir(loc.path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", uri, err)
		}
		f, err := os.Create(loc.path)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", uri, err)
		}
		return &fileWriter{File: f}, nil
	}

	if st.uploader == nil {
		return nil, fmt.Errorf("s3 client is not configured for %s", uri)
	}

	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := st.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(loc.bucket),
			Key:    aws.String(loc.key),
			Body:   pr,
		})
		if err != nil {
			err = fmt.Errorf("failed to upload %s: %w", uri, err)
		}
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

type fileWriter struct {
	*os.File
}

func (w *fileWriter) Abort(error) error {
	w.File.Close()
	return os.Remove(w.File.Name())
}

type s3Writer struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (w *s3Writer) Abort(cause error) error {
	w.pw.CloseWithError(cause)
	<-w.done
	return nil
}
