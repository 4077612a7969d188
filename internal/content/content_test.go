package content

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %q: %v", name, err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatalf("write entry %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

func TestExtractWritesFiles(t *testing.T) {
	dir := t.TempDir()
	zipBytes := buildZip(t, map[string]string{
		"USA.svg": "<svg/>",
		"sub/GER.svg": "<svg/>",
	})
	result, err := Extract(dir, "flags", zipBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Written != 2 {
		t.Fatalf("expected 2 files written, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, "flags", "USA.svg")); err != nil {
		t.Fatalf("expected USA.svg to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "flags", "sub", "GER.svg")); err != nil {
		t.Fatalf("expected nested file to exist: %v", err)
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	zipBytes := buildZip(t, map[string]string{
		"../../etc/passwd": "evil",
		"good.svg":          "ok",
	})
	result, err := Extract(dir, "flags", zipBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Written != 1 || result.Skipped != 1 {
		t.Fatalf("expected 1 written 1 skipped, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "etc", "passwd")); err == nil {
		t.Fatalf("path traversal entry must not be written outside the root")
	}
}

func TestExtractMalformedZip(t *testing.T) {
	if _, err := Extract(t.TempDir(), "flags", []byte("not a zip")); err == nil {
		t.Fatalf("expected malformed zip error")
	}
}

func TestExtractTranslationsJSON(t *testing.T) {
	zipBytes := buildZip(t, map[string]string{
		"translations.json": `{"en":{"Snatch":"Snatch"}}`,
	})
	data, err := ExtractTranslationsJSON(zipBytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"en":{"Snatch":"Snatch"}}` {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestExtractTranslationsJSONMissingEntry(t *testing.T) {
	zipBytes := buildZip(t, map[string]string{"other.json": "{}"})
	if _, err := ExtractTranslationsJSON(zipBytes); err == nil {
		t.Fatalf("expected error for missing translations.json entry")
	}
}
