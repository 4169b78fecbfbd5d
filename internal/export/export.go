// Package export writes point-in-time snapshots of the record store to
// disk as zstd-compressed NDJSON, one record per line.
package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/nanotail/internal/model"
)

// MagicHeader identifies a nanotail snapshot file.
var MagicHeader = []byte("NTAIL1")

// WriteSnapshot writes rs to w: magic header, then a zstd stream of
// newline-delimited JSON records in display order.
func WriteSnapshot(w io.Writer, rs []model.Record) error {
	if _, err := w.Write(MagicHeader); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}

	for _, r := range rs {
		data, err := json.Marshal(r)
		if err != nil {
			enc.Close()
			return err
		}
		data = append(data, '\n')
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return err
		}
	}
	return enc.Close()
}

// ReadSnapshot reads a snapshot written by WriteSnapshot and returns
// the records in their stored order.
func ReadSnapshot(r io.Reader) ([]model.Record, error) {
	header := make([]byte, len(MagicHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header, MagicHeader) {
		return nil, fmt.Errorf("not a nanotail snapshot (header %q)", header)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []model.Record
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
