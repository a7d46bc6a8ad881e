package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tollgrid/cdrpipe/internal/types"
)

// FileExtractor reads raw records from a CSV or JSON extract on disk. CSV
// needs a header row; JSON accepts either an array of objects or one
// object per line.
type FileExtractor struct{}

// NewFileExtractor creates the extractor.
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

// Extract implements ExtractionAdapter.
func (e *FileExtractor) Extract(ctx context.Context, path string) ([]*types.RawRecord, types.FileMetadata, error) {
	meta := types.FileMetadata{Filename: filepath.Base(path)}

	f, err := os.Open(path)
	if err != nil {
		return nil, meta, fmt.Errorf("open extract: %w", err)
	}
	defer f.Close()

	var records []*types.RawRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		meta.DetectedFormat = "csv"
		records, err = readCSV(ctx, f, strings.ToLower(filepath.Ext(path)) == ".tsv")
	case ".json", ".jsonl", ".ndjson":
		meta.DetectedFormat = "json"
		records, err = readJSON(ctx, f)
	default:
		return nil, meta, fmt.Errorf("unsupported extract format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, meta, err
	}
	return records, meta, nil
}

func readCSV(ctx context.Context, r io.Reader, tab bool) ([]*types.RawRecord, error) {
	cr := csv.NewReader(r)
	if tab {
		cr.Comma = '\t'
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []*types.RawRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(records)+2, err)
		}
		rec := types.NewRawRecord(len(header))
		for i, v := range line {
			if i >= len(header) {
				break
			}
			rec.Set(header[i], v)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readJSON(ctx context.Context, r io.Reader) ([]*types.RawRecord, error) {
	br := bufio.NewReader(r)

	// Array form starts with '['; everything else is treated as one
	// object per line.
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read json extract: %w", err)
	}

	if first == '[' {
		var rows []map[string]any
		if err := json.NewDecoder(br).Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode json array: %w", err)
		}
		records := make([]*types.RawRecord, 0, len(rows))
		for _, m := range rows {
			records = append(records, mapToRecord(m))
		}
		return records, nil
	}

	var records []*types.RawRecord
	dec := json.NewDecoder(br)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var m map[string]any
		if err := dec.Decode(&m); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode json line %d: %w", len(records)+1, err)
		}
		records = append(records, mapToRecord(m))
	}
	return records, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

func mapToRecord(m map[string]any) *types.RawRecord {
	rec := types.NewRawRecord(len(m))
	// sorted field order keeps batch cache keys stable across runs
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec.Set(k, m[k])
	}
	return rec
}
