// Package content extracts binary ZIP payloads into the hub's local resource
// directory (flags/, logos/, pictures/, styles/) and special-cases the
// translations archive, which carries exactly one JSON entry rather than
// files meant for disk.
package content

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrMalformedZip indicates the payload could not be opened as a ZIP archive.
var ErrMalformedZip = errors.New("malformed zip archive")

// Result summarizes one extraction pass for logging/telemetry.
type Result struct {
	Written int
	Skipped int
}

// Extract unpacks every non-directory entry of zipBytes into
// <localFilesDir>/<subdir>/<entry-name>, writing each file atomically
// (temp file then rename) and silently rejecting entries that attempt path
// traversal.
func Extract(localFilesDir, subdir string, zipBytes []byte) (Result, error) {
	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedZip, err)
	}

	destRoot := filepath.Join(localFilesDir, subdir)
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return Result{}, err
	}

	var result Result
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		destPath, ok := safeJoin(destRoot, entry.Name)
		if !ok {
			result.Skipped++
			continue
		}
		if err := extractEntry(entry, destPath); err != nil {
			result.Skipped++
			continue
		}
		result.Written++
	}
	return result, nil
}

// safeJoin resolves name beneath root, rejecting ".." components and absolute
// paths so a malicious or buggy producer cannot write outside the resource
// directory.
func safeJoin(root, name string) (string, bool) {
	cleaned := filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || filepath.IsAbs(cleaned) {
		return "", false
	}
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", false
		}
	}
	return filepath.Join(root, cleaned), true
}

func extractEntry(entry *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, destPath)
}

// translationsEntryName is the single expected entry inside a translations ZIP.
const translationsEntryName = "translations.json"

// databaseEntryName is the single expected entry inside a database ZIP.
const databaseEntryName = "competition.json"

// ExtractTranslationsJSON returns the raw bytes of the translations.json
// entry without writing anything to disk; the translation store (internal/translations)
// owns parsing and merging.
func ExtractTranslationsJSON(zipBytes []byte) ([]byte, error) {
	return ExtractNamedJSON(zipBytes, translationsEntryName)
}

// ExtractDatabaseJSON returns the raw bytes of the competition.json entry
// without writing anything to disk; internal/database owns parsing/assembly.
func ExtractDatabaseJSON(zipBytes []byte) ([]byte, error) {
	return ExtractNamedJSON(zipBytes, databaseEntryName)
}

// ExtractNamedJSON returns the raw bytes of the entry named entryName inside
// zipBytes, matched by base name, without writing anything to disk.
func ExtractNamedJSON(zipBytes []byte, entryName string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedZip, err)
	}
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if filepath.Base(entry.Name) != entryName {
			continue
		}
		src, err := entry.Open()
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return io.ReadAll(src)
	}
	return nil, fmt.Errorf("zip missing %s entry", entryName)
}
