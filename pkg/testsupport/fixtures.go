// Package testsupport provides fixture loading helpers and in-memory fakes
// shared by the test suites of this module.
package testsupport

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

var updateGolden = flag.Bool("update-golden", false, "rewrite golden files with current output")

// LoadFixture reads a file from the package's testdata directory.
func LoadFixture(t testing.TB, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("load fixture %s: %v", name, err)
	}
	return data
}

// LoadFixtureJSON reads a JSON fixture into target.
func LoadFixtureJSON(t testing.TB, name string, target any) {
	t.Helper()
	if err := json.Unmarshal(LoadFixture(t, name), target); err != nil {
		t.Fatalf("parse fixture %s: %v", name, err)
	}
}

// LoadGolden reads a golden file, rewriting it first with actual when the
// -update-golden flag is set.
func LoadGolden(t testing.TB, name string, actual []byte) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	if *updateGolden {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("prepare golden dir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, actual, 0o644); err != nil {
			t.Fatalf("update golden %s: %v", name, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("load golden %s: %v", name, err)
	}
	return data
}
