// archive_test.go: Test cases for tar+xz archiving and whole-tree
// encryption.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
)

func TestCompressExtractRoundTrip(t *testing.T) {
	input := buildTestTree(t)
	archive := filepath.Join(t.TempDir(), "tree"+ArchiveExt)
	output := t.TempDir()

	if err := CompressDirectory(input, archive); err != nil {
		t.Fatal(err)
	}

	extracted, err := ExtractArchive(archive, output)
	if err != nil {
		t.Fatal(err)
	}
	if len(extracted) != 4 {
		t.Errorf("expected 4 extracted files, got %d", len(extracted))
	}

	for _, rel := range []string{"readme.txt", "data/report.txt", "data/deep/numbers.csv", "image.bin"} {
		want, err := os.ReadFile(filepath.Join(input, rel))
		if err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(filepath.Join(output, rel))
		if err != nil {
			t.Fatalf("extracted file %s missing: %v", rel, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("extracted %s differs from source", rel)
		}
	}

	// Skipped directories never enter the archive.
	if _, err := os.Stat(filepath.Join(output, "node_modules")); !os.IsNotExist(err) {
		t.Error("package directory leaked into archive")
	}
}

func TestExtractArchiveRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil"+ArchiveExt)

	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	xzw, err := xz.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(xzw)
	payload := []byte("escape attempt")
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../outside.txt",
		Mode:     0o600,
		Size:     int64(len(payload)),
		Typeflag: tar.TypeReg,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	output := filepath.Join(dir, "out")
	if _, err := ExtractArchive(archive, output); err == nil {
		t.Fatal("traversal entry accepted")
	} else if !strings.Contains(err.Error(), "escapes") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry written outside output directory")
	}
}

func TestEncryptDecryptArchive(t *testing.T) {
	key := mustKey(t)
	input := buildTestTree(t)
	container := filepath.Join(t.TempDir(), "tree"+ArchiveExt+EncryptedExt)
	output := t.TempDir()

	meta, err := EncryptArchive(input, container, &FileOptions{Key: key})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(meta.OriginalName, ArchiveExt) {
		t.Errorf("unexpected archive name %q", meta.OriginalName)
	}

	files, err := DecryptArchive(container, output, &FileOptions{Key: key})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 4 {
		t.Errorf("expected 4 files, got %d", len(files))
	}

	want, err := os.ReadFile(filepath.Join(input, "data/report.txt"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(output, "data/report.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Error("archived round trip mismatch")
	}

	// Wrong key fails before anything is extracted.
	empty := t.TempDir()
	if _, err := DecryptArchive(container, empty, &FileOptions{Key: mustKey(t)}); err == nil {
		t.Fatal("wrong key accepted")
	}
	entries, err := os.ReadDir(empty)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Error("files extracted despite decryption failure")
	}
}
