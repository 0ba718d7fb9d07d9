package processors

import (
	"fmt"
	"io"
	"strings"

	"github.com/ruslano69/tdtp-featurestore/pkg/staging"
)

// Поддерживаемые алгоритмы сжатия выходных файлов
const (
	CompressionNone = ""
	CompressionZstd = "zstd"
)

// Config содержит настройки обработки файлов результата выборки
type Config struct {
	Compression string `yaml:"compression"` // "" или "zstd"
	Level       int    `yaml:"level"`       // уровень zstd, 0 - по умолчанию
	Checksum    bool   `yaml:"checksum"`    // вычислять xxh3 выходного файла
}

// Validate проверяет настройки
func (c Config) Validate() error {
	switch strings.ToLower(c.Compression) {
	case CompressionNone, CompressionZstd:
		return nil
	default:
		return fmt.Errorf("unsupported compression: %s", c.Compression)
	}
}

// Extension возвращает суффикс имени выходного файла
func (c Config) Extension() string {
	if strings.EqualFold(c.Compression, CompressionZstd) {
		return ".zst"
	}
	return ""
}

// Output - цепочка записи выходного файла: сжатие, затем подсчет
// контрольной суммы записанных в назначение байт.
type Output struct {
	dst        staging.Writer
	checksum   *ChecksumWriter
	compressor io.WriteCloser
	w          io.Writer
	closed     bool
}

// NewOutput оборачивает назначение цепочкой обработки
func NewOutput(dst staging.Writer, cfg Config) (*Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := &Output{dst: dst, w: dst}
	if cfg.Checksum {
		out.checksum = NewChecksumWriter(dst)
		out.w = out.checksum
	}
	if strings.EqualFold(cfg.Compression, CompressionZstd) {
		zw, err := NewCompressWriter(out.w, cfg.Level)
		if err != nil {
			return nil, err
		}
		out.compressor = zw
		out.w = zw
	}
	return out, nil
}

func (o *Output) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

// Close сбрасывает сжатие и закрывает назначение
func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	if o.compressor != nil {
		if err := o.compressor.Close(); err != nil {
			err = fmt.Errorf("failed to flush compressed output: %w", err)
			o.dst.Abort(err)
			return err
		}
	}
	return o.dst.Close()
}

// Abort прерывает запись, назначение не сохраняется
func (o *Output) Abort(cause error) error {
	if o.closed {
		return nil
	}
	o.closed = true
	if o.compressor != nil {
		o.compressor.Close()
	}
	return o.dst.Abort(cause)
}

// Checksum возвращает xxh3 записанных байт или пустую строку,
// если подсчет не включен. Значение окончательно после Close.
func (o *Output) Checksum() string {
	if o.checksum == nil {
		return ""
	}
	return o.checksum.Sum()
}
