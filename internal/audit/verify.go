package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
// A break is never auto-repaired; the first inconsistent link is
// reported for operator investigation.
type VerifyResult struct {
	Valid        bool   `json:"valid"`
	Entries      int64  `json:"entries"`
	BrokenSeq    int64  `json:"broken_seq,omitempty"`
	ExpectedPrev string `json:"expected_prev,omitempty"`
	ActualPrev   string `json:"actual_prev,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorLine    int    `json:"error_line,omitempty"`
}

// VerifyChain walks the whole log and validates every link:
// monotonic seq, prev_hash equal to the previous entry's hash, and
// each entry's hash matching its own canonical content. Any single
// byte changed in a historical entry, or any entry removed, breaks
// the chain at the first inconsistent link.
//
// Callers must not run verification concurrently with an active
// writer unless they hold a consistent snapshot of the file.
func VerifyChain(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	prevHash := GenesisHash
	var prevSeq int64

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Bounded failure: identify the offending line rather than
			// treating it as end-of-log.
			return VerifyResult{
				Entries:   prevSeq,
				Error:     fmt.Sprintf("corrupt entry: %v", err),
				ErrorLine: lineNum,
			}
		}

		if e.Seq != prevSeq+1 {
			return VerifyResult{
				Entries:   prevSeq,
				BrokenSeq: e.Seq,
				Error:     fmt.Sprintf("sequence gap: expected seq %d, got %d", prevSeq+1, e.Seq),
				ErrorLine: lineNum,
			}
		}

		if e.PrevHash != prevHash {
			return VerifyResult{
				Entries:      prevSeq,
				BrokenSeq:    e.Seq,
				ExpectedPrev: prevHash,
				ActualPrev:   e.PrevHash,
				Error:        "prev_hash does not match previous entry",
				ErrorLine:    lineNum,
			}
		}

		want, err := ComputeHash(e)
		if err != nil {
			return VerifyResult{
				Entries:   prevSeq,
				BrokenSeq: e.Seq,
				Error:     fmt.Sprintf("hash entry: %v", err),
				ErrorLine: lineNum,
			}
		}
		if e.Hash != want {
			return VerifyResult{
				Entries:      prevSeq,
				BrokenSeq:    e.Seq,
				ExpectedPrev: want,
				ActualPrev:   e.Hash,
				Error:        "entry content does not match its recorded hash",
				ErrorLine:    lineNum,
			}
		}

		prevHash = e.Hash
		prevSeq = e.Seq
	}

	if err := scanner.Err(); err != nil {
		return VerifyResult{Entries: prevSeq, Error: fmt.Sprintf("scan: %v", err)}
	}

	return VerifyResult{Valid: true, Entries: prevSeq}
}

// ReadAll returns every parseable entry plus the line numbers of any
// corrupt lines. Used by tail display and telemetry export, where a
// single bad line must not hide the rest of the log.
func ReadAll(path string) ([]Entry, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	var corrupt []int
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			corrupt = append(corrupt, lineNum)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return entries, corrupt, nil
}
