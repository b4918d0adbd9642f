package urllist

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := "http://a/x\n  http://a/y  \r\n\n# comment\nhttp://a/x\n\t\n"

	urls, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []string{"http://a/x", "http://a/y", "http://a/x"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("Parse = %v, want %v", urls, want)
	}
}

func TestParseEmpty(t *testing.T) {
	urls, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("expected no urls, got %v", urls)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte("http://a/1\nhttp://a/2"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	urls, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(urls) != 2 || urls[1] != "http://a/2" {
		t.Errorf("unexpected urls %v", urls)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
