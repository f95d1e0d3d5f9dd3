package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// tailChunk is how many bytes are read from the end of the log when
// recovering chain state. One entry is far smaller than this, so the
// cost of LastEntry is independent of log length.
const tailChunk = 64 * 1024

// LastEntry returns the final entry of the log by reading only the
// tail of the file. A missing or empty log returns (nil, nil).
func LastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, nil
	}

	offset := info.Size() - tailChunk
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, err
	}

	line := lastLine(buf)
	if len(line) == 0 {
		return nil, fmt.Errorf("no complete line within final %d bytes", len(buf))
	}

	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, fmt.Errorf("tail entry is not valid JSON: %w", err)
	}
	if e.Hash == "" {
		return nil, fmt.Errorf("tail entry has no hash")
	}
	return &e, nil
}

// LastHash returns the hash carried by the final entry, or GenesisHash
// for a missing or empty log.
func LastHash(path string) (string, error) {
	e, err := LastEntry(path)
	if err != nil {
		return "", err
	}
	if e == nil {
		return GenesisHash, nil
	}
	return e.Hash, nil
}

// lastLine extracts the final line from buf. A trailing partial line
// from an interrupted write surfaces as a parse error in the caller,
// never as silent truncation.
func lastLine(buf []byte) []byte {
	buf = bytes.TrimRight(buf, "\n")
	if len(buf) == 0 {
		return nil
	}
	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		return buf[i+1:]
	}
	return buf
}
