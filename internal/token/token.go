// Package token issues and verifies signed phase tokens.
// A token binds one task to one phase for a bounded time window. There
// is no revocation list: expiry plus phase mismatch make superseded
// tokens useless, and every granted transition mints a fresh token.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const prefix = "pgt_"

var (
	// ErrInvalid covers malformed tokens, bad signatures, and task
	// mismatches. Callers get no detail beyond "invalid": an untrusted
	// token earns no diagnostics.
	ErrInvalid = errors.New("phase token invalid")
	// ErrExpired is returned once the clock passes issued-at + expiry.
	ErrExpired = errors.New("phase token expired")
)

// Claims is the verified content of a phase token.
type Claims struct {
	TaskID   string `json:"task_id"`
	PhaseID  string `json:"phase_id"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
}

// Authority signs and verifies phase tokens with a symmetric key read
// once at startup. Verification is pure and safe for concurrent use.
type Authority struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// New creates an Authority. The key must be non-empty; expiry <= 0
// falls back to two hours.
func New(key []byte, expiry time.Duration) (*Authority, error) {
	if len(key) == 0 {
		return nil, errors.New("token: signing key must not be empty")
	}
	if expiry <= 0 {
		expiry = 2 * time.Hour
	}
	return &Authority{key: key, expiry: expiry, now: time.Now}, nil
}

// WithClock overrides the time source. Tests only.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}

// Issue mints a signed token binding the task to the phase.
// Expiry is fixed at issuance and never extended by use.
func (a *Authority) Issue(taskID, phaseID string) (string, error) {
	if taskID == "" || phaseID == "" {
		return "", errors.New("token: task id and phase id are required")
	}
	now := a.now().UTC()
	claims := Claims{
		TaskID:   taskID,
		PhaseID:  phaseID,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(a.expiry).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("token: marshal claims: %w", err)
	}
	return prefix + encode(payload) + "." + encode(a.sign(payload)), nil
}

// Verify checks signature and expiry and returns the claims.
// When expectedTaskID is non-empty, a token minted for another task is
// rejected as invalid, not merely mismatched.
func (a *Authority) Verify(tok, expectedTaskID string) (*Claims, error) {
	raw, ok := strings.CutPrefix(tok, prefix)
	if !ok {
		return nil, ErrInvalid
	}
	payloadPart, sigPart, found := strings.Cut(raw, ".")
	if !found {
		return nil, ErrInvalid
	}

	payload, err := decode(payloadPart)
	if err != nil {
		return nil, ErrInvalid
	}
	sig, err := decode(sigPart)
	if err != nil {
		return nil, ErrInvalid
	}
	if !hmac.Equal(sig, a.sign(payload)) {
		return nil, ErrInvalid
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalid
	}
	if claims.TaskID == "" || claims.PhaseID == "" {
		return nil, ErrInvalid
	}
	if expectedTaskID != "" && claims.TaskID != expectedTaskID {
		return nil, ErrInvalid
	}
	if a.now().UTC().Unix() >= claims.Expiry {
		return nil, ErrExpired
	}
	return &claims, nil
}

func (a *Authority) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, a.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
