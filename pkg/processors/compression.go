package processors

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// DefaultLevel - уровень сжатия по умолчанию, хороший баланс скорости и размера
const DefaultLevel = 3

// NewCompressWriter возвращает потоковый zstd-энкодер поверх w.
// level: 1 (самый быстрый) - 22 (лучшее сжатие), 0 - DefaultLevel.
// Close энкодера не закрывает w.
func NewCompressWriter(w io.Writer, level int) (io.WriteCloser, error) {
	if level <= 0 {
		level = DefaultLevel
	}
	encoder, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(4),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return encoder, nil
}

// NewDecompressReader возвращает потоковый zstd-декодер поверх r
func NewDecompressReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(4))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return decoder.IOReadCloser(), nil
}

// IsCompressed определяет сжатый файл по расширению
func IsCompressed(uri string) bool {
	return strings.HasSuffix(uri, ".zst")
}

// MaybeDecompress оборачивает rc декодером, если файл сжат.
// Закрытие результата закрывает и rc.
func MaybeDecompress(uri string, rc io.ReadCloser) (io.ReadCloser, error) {
	if !IsCompressed(uri) {
		return rc, nil
	}
	dec, err := NewDecompressReader(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return &decompressed{ReadCloser: dec, src: rc}, nil
}

type decompressed struct {
	io.ReadCloser
	src io.Closer
}

func (d *decompressed) Close() error {
	d.ReadCloser.Close()
	return d.src.Close()
}
