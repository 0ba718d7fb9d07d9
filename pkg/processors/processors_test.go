package processors

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

type nopCloser struct {
	*bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func (n *nopCloser) Abort(error) error {
	n.Reset()
	n.closed = true
	return nil
}

func TestOutputCompressedWithChecksum(t *testing.T) {
	dst := &nopCloser{Buffer: &bytes.Buffer{}}
	out, err := NewOutput(dst, Config{Compression: "zstd", Checksum: true})
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}

	payload := strings.Repeat("driver_id\tevent_timestamp\tdriver_stats__rate\n", 100)
	if _, err := io.WriteString(out, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !dst.closed {
		t.Error("назначение должно быть закрыто")
	}

	written := dst.Bytes()
	if len(written) >= len(payload) {
		t.Errorf("сжатие не уменьшило размер: %d >= %d", len(written), len(payload))
	}

	// контрольная сумма считается по сжатым байтам
	if got, want := out.Checksum(), ComputeChecksum(written); got != want {
		t.Errorf("Checksum = %s, want %s", got, want)
	}
	if err := ValidateChecksum(bytes.NewReader(written), out.Checksum()); err != nil {
		t.Errorf("ValidateChecksum: %v", err)
	}

	rc, err := MaybeDecompress("out.csv.zst", io.NopCloser(bytes.NewReader(written)))
	if err != nil {
		t.Fatalf("MaybeDecompress: %v", err)
	}
	defer rc.Close()
	plain, _ := io.ReadAll(rc)
	if string(plain) != payload {
		t.Error("распакованные данные не совпадают с исходными")
	}
}

func TestOutputPlain(t *testing.T) {
	dst := &nopCloser{Buffer: &bytes.Buffer{}}
	out, err := NewOutput(dst, Config{})
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	io.WriteString(out, "a\tb\n")
	out.Close()

	if dst.String() != "a\tb\n" {
		t.Errorf("данные = %q", dst.String())
	}
	if out.Checksum() != "" {
		t.Error("без Checksum сумма должна быть пустой")
	}
}

func TestOutputAbort(t *testing.T) {
	dst := &nopCloser{Buffer: &bytes.Buffer{}}
	out, _ := NewOutput(dst, Config{Compression: "zstd"})
	io.WriteString(out, "a\tb\n")
	if err := out.Abort(io.ErrUnexpectedEOF); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if dst.Len() != 0 || !dst.closed {
		t.Error("Abort должен отбросить данные назначения")
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close после Abort: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (Config{Compression: "gzip"}).Validate(); err == nil {
		t.Error("gzip не поддерживается")
	}
	if ext := (Config{Compression: "ZSTD"}).Extension(); ext != ".zst" {
		t.Errorf("Extension = %q", ext)
	}
	if err := ValidateChecksum(strings.NewReader("x"), "0000000000000000"); err == nil {
		t.Error("ожидалась ошибка несовпадения")
	}
}
