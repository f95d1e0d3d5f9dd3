// Package secret resolves signing secrets from configured sources.
// The token authority reads exactly one secret at startup; nothing in
// this package is consulted on the request path.
package secret

import (
	"fmt"
	"os"
	"strings"
)

// Source yields named secrets as raw bytes.
type Source interface {
	Get(name string) ([]byte, error)
}

// EnvSource reads secrets from environment variables.
type EnvSource struct{}

func (EnvSource) Get(name string) ([]byte, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil, fmt.Errorf("secret: environment variable %s is not set", name)
	}
	return []byte(v), nil
}

// FileSource reads secrets from files, trimming a trailing newline.
type FileSource struct{}

func (FileSource) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: read %s: %w", path, err)
	}
	data = []byte(strings.TrimRight(string(data), "\r\n"))
	if len(data) == 0 {
		return nil, fmt.Errorf("secret: file %s is empty", path)
	}
	return data, nil
}

// Resolve dereferences a secret reference of the form "env:NAME" or
// "file:/path". A bare reference is treated as an environment variable.
func Resolve(ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("secret: empty reference")
	}
	scheme, rest, found := strings.Cut(ref, ":")
	if !found {
		return EnvSource{}.Get(ref)
	}
	switch scheme {
	case "env":
		return EnvSource{}.Get(rest)
	case "file":
		return FileSource{}.Get(rest)
	default:
		return nil, fmt.Errorf("secret: unknown source scheme %q", scheme)
	}
}
