package workflow

import "testing"

// FuzzParse ensures arbitrary input never panics the loader: it either
// yields a valid definition or a regular error.
func FuzzParse(f *testing.F) {
	f.Add([]byte(minimalYAML))
	f.Add([]byte(DefaultYAML))
	f.Add([]byte("name: x\nphases: []\n"))
	f.Add([]byte("{"))
	f.Add([]byte("name: \x00\nphases:\n  - id: \x00\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		def, err := Parse(data)
		if err == nil && def == nil {
			t.Fatal("nil definition with nil error")
		}
	})
}
