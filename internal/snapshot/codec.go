package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Encode writes s as indented JSON, gzip-compressed when compress is set.
func Encode(w io.Writer, s SnapshotV1, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	zw := gzip.NewWriter(w)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return zw.Close()
}

// ReadPayload returns the JSON payload, transparently gunzipping compressed input.
func ReadPayload(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if !bytes.Equal(head, gzipMagic) {
		return io.ReadAll(br)
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("open gzip snapshot: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	return data, nil
}

// Validate reads a snapshot file, compressed or not, and validates it.
func Validate(r io.Reader) (Result, error) {
	payload, err := ReadPayload(r)
	if err != nil {
		return Result{}, err
	}
	return ValidateV1(payload), nil
}
