package processors

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// ChecksumWriter вычисляет xxh3 (64-bit) проходящих через него байт
type ChecksumWriter struct {
	w io.Writer
	h *xxh3.Hasher
}

// NewChecksumWriter создает writer, считающий контрольную сумму записанного в w
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{w: w, h: xxh3.New()}
}

func (c *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.h.Write(p[:n])
	return n, err
}

// Sum возвращает hex-представление хеша
func (c *ChecksumWriter) Sum() string {
	return formatHash(c.h.Sum64())
}

// ComputeChecksum вычисляет xxh3 хеш данных и возвращает hex-encoded строку.
func ComputeChecksum(data []byte) string {
	return formatHash(xxh3.Hash(data))
}

// ValidateChecksum проверяет соответствие потока ожидаемому хешу
func ValidateChecksum(r io.Reader, expectedHash string) error {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return fmt.Errorf("failed to read data for checksum: %w", err)
	}
	if actual := formatHash(h.Sum64()); actual != expectedHash {
		return fmt.Errorf("checksum validation failed: expected %s, got %s", expectedHash, actual)
	}
	return nil
}

// formatHash - big-endian hex
func formatHash(v uint64) string {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return hex.EncodeToString(b)
}
