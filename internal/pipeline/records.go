package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ReadRecords decodes a JSON array of raw records. A single object is
// accepted as a one-element batch. Numbers in loosely typed fields arrive as
// json.Number so large epoch values and prices keep their exact digits.
func ReadRecords(r io.Reader) ([]RawRecord, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if b[0] == '{' {
		var one RawRecord
		if err := dec.Decode(&one); err != nil {
			return nil, fmt.Errorf("decode raw record: %w", err)
		}
		return []RawRecord{one}, nil
	}
	var recs []RawRecord
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode raw records: %w", err)
	}
	return recs, nil
}

// LoadRecords reads raw records from path; "-" means stdin.
func LoadRecords(path string) ([]RawRecord, error) {
	if path == "-" {
		return ReadRecords(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRecords(f)
}
