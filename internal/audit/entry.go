package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Actions recorded in the audit log. Every enforcer and evaluator
// decision lands here before it is returned to the caller.
const (
	ActionTaskClaimed       = "task_claimed"
	ActionTokenIssued       = "token_issued"
	ActionToolCheck         = "tool_check"
	ActionTransitionGranted = "transition_granted"
	ActionTransitionBlocked = "transition_blocked"
	ActionTaskAbandoned     = "task_abandoned"
)

// Outcomes. Denials keep their cause distinct so a denied call is
// provable after the fact without replaying policy.
const (
	OutcomeAllow        = "allow"
	OutcomeDeny         = "deny"
	OutcomeGranted      = "granted"
	OutcomeBlocked      = "blocked"
	OutcomeIssued       = "issued"
	OutcomeInvalidToken = "invalid_token"
	OutcomeExpiredToken = "expired_token"
)

// Entry is one line in the hash-chained JSONL audit log.
//
// Hash covers PrevHash plus the canonical serialization of the entry
// with Hash cleared. Field order is fixed by the struct; Context is a
// map, which encoding/json serializes with sorted keys, so the
// canonical bytes are deterministic. Context must never contain token
// material or other secrets.
type Entry struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Outcome   string         `json:"outcome"`
	Context   map[string]any `json:"context,omitempty"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash,omitempty"`
}

// TimestampFormat is the wire format for entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// GenesisHash is the prev_hash of the first entry in a new log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ComputeHash returns the chained hash for an entry whose PrevHash is
// already set. The Hash field itself is excluded from the digest.
func ComputeHash(e Entry) (string, error) {
	e.Hash = ""
	canonical, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(canonical)
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
