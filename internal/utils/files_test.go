package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeWriteFile_CreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "report.md")
	if err := SafeWriteFile(path, []byte("hello")); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("got %q", b)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := PrettyJSON(map[string]int{"rows": 3})
	if err != nil {
		t.Fatalf("PrettyJSON: %v", err)
	}
	if string(b) != "{\n  \"rows\": 3\n}" {
		t.Fatalf("unexpected json: %s", b)
	}
}

func TestOutputPath(t *testing.T) {
	got := OutputPath("output", "data/global_temp.csv", "predict", ".png")
	want := filepath.Join("output", "global_temp_predict.png")
	if got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
}
