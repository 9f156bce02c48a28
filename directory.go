// directory.go: Recursive directory encryption with a JSON manifest
// describing per-file outcomes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// ManifestName is the sidecar file written next to an encrypted tree.
const ManifestName = "encryption-manifest.json"

// skipDirs are package and build directories excluded from traversal in
// addition to dot-directories.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
}

// FileRecord is one entry in a DirectoryManifest. Exactly one of
// Metadata and Error is set.
type FileRecord struct {
	OriginalPath  string        `json:"originalPath"`
	EncryptedPath string        `json:"encryptedPath,omitempty"`
	Metadata      *FileMetadata `json:"metadata,omitempty"`
	Error         string        `json:"error,omitempty"`
	OriginalSize  int64         `json:"originalSize"`
	EncryptedSize int64         `json:"encryptedSize,omitempty"`
}

// DirectoryManifest records the outcome of a directory-wide encryption.
// One file's failure does not abort the rest; FailedFiles is the caller's
// signal to retry or investigate.
type DirectoryManifest struct {
	Version             int          `json:"version"`
	Timestamp           string       `json:"timestamp"`
	InputDirectory      string       `json:"inputDirectory"`
	OutputDirectory     string       `json:"outputDirectory"`
	TotalFiles          int          `json:"totalFiles"`
	SuccessfulFiles     int          `json:"successfulFiles"`
	FailedFiles         int          `json:"failedFiles"`
	TotalOriginalSize   int64        `json:"totalOriginalSize"`
	TotalEncryptedSize  int64        `json:"totalEncryptedSize"`
	CompressionRatio    float64      `json:"compressionRatio"`
	EncryptionAlgorithm string       `json:"encryptionAlgorithm"`
	Files               []FileRecord `json:"files"`
}

// EncryptDirectory walks inputDir, encrypts every matching regular file
// into a mirrored tree under outputDir with the ".encrypted" suffix, and
// writes an encryption-manifest.json sidecar into outputDir.
//
// Dot-directories and common package/build directories are skipped.
// opts.Extensions, when non-empty, restricts the walk to the listed file
// extensions.
func EncryptDirectory(inputDir, outputDir string, opts *FileOptions) (*DirectoryManifest, error) {
	if opts == nil || (opts.Key == nil && !opts.hybrid()) {
		return nil, goerrors.New(ErrCodeFileFormat, "options must carry a key or a recipient public key")
	}
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeFileRead, "failed to stat input directory")
	}
	if !info.IsDir() {
		return nil, goerrors.New(ErrCodeFileRead, "input path is not a directory")
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeFileWrite, "failed to create output directory")
	}

	manifest := &DirectoryManifest{
		Version:         ContainerVersion,
		Timestamp:       timecache.CachedTime().UTC().Format(time.RFC3339),
		InputDirectory:  inputDir,
		OutputDirectory: outputDir,
	}
	if opts.hybrid() {
		manifest.EncryptionAlgorithm = AlgorithmHybrid.String()
	} else {
		manifest.EncryptionAlgorithm = opts.Key.Algorithm.String()
	}

	walkErr := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == inputDir {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !extensionAllowed(path, opts.Extensions) {
			return nil
		}

		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outputDir, rel+EncryptedExt)

		record := FileRecord{OriginalPath: path}
		if fi, err := d.Info(); err == nil {
			record.OriginalSize = fi.Size()
		}
		manifest.TotalFiles++

		if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
			record.Error = err.Error()
			manifest.FailedFiles++
			manifest.Files = append(manifest.Files, record)
			return nil
		}

		meta, err := EncryptFile(path, outPath, opts)
		if err != nil {
			record.Error = err.Error()
			manifest.FailedFiles++
			manifest.Files = append(manifest.Files, record)
			return nil
		}

		record.EncryptedPath = outPath
		record.Metadata = meta
		if fi, err := os.Stat(outPath); err == nil {
			record.EncryptedSize = fi.Size()
		}
		manifest.SuccessfulFiles++
		manifest.TotalOriginalSize += record.OriginalSize
		manifest.TotalEncryptedSize += record.EncryptedSize
		manifest.Files = append(manifest.Files, record)
		return nil
	})
	if walkErr != nil {
		return nil, goerrors.Wrap(walkErr, ErrCodeFileRead, "directory traversal failed")
	}

	if manifest.TotalOriginalSize > 0 {
		manifest.CompressionRatio = float64(manifest.TotalEncryptedSize) / float64(manifest.TotalOriginalSize)
	}

	if err := writeManifest(filepath.Join(outputDir, ManifestName), manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// DecryptDirectory reads the manifest inside encryptedDir and decrypts
// every successfully-encrypted container into a mirrored tree under
// outputDir, stripping the ".encrypted" suffix.
//
// Per-file decryption failures are recorded in the returned manifest
// rather than aborting the remaining files.
func DecryptDirectory(encryptedDir, outputDir string, opts *FileOptions) (*DirectoryManifest, error) {
	source, err := ReadManifest(filepath.Join(encryptedDir, ManifestName))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeFileWrite, "failed to create output directory")
	}

	result := &DirectoryManifest{
		Version:             source.Version,
		Timestamp:           timecache.CachedTime().UTC().Format(time.RFC3339),
		InputDirectory:      encryptedDir,
		OutputDirectory:     outputDir,
		EncryptionAlgorithm: source.EncryptionAlgorithm,
	}

	for _, entry := range source.Files {
		if entry.EncryptedPath == "" {
			continue
		}
		result.TotalFiles++

		rel, err := filepath.Rel(source.OutputDirectory, entry.EncryptedPath)
		if err != nil {
			rel = filepath.Base(entry.EncryptedPath)
		}
		outPath := filepath.Join(outputDir, strings.TrimSuffix(rel, EncryptedExt))

		record := FileRecord{
			OriginalPath: entry.EncryptedPath,
			OriginalSize: entry.EncryptedSize,
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
			record.Error = err.Error()
			result.FailedFiles++
			result.Files = append(result.Files, record)
			continue
		}

		meta, err := DecryptFile(entry.EncryptedPath, outPath, opts)
		if err != nil {
			record.Error = err.Error()
			result.FailedFiles++
			result.Files = append(result.Files, record)
			continue
		}

		record.EncryptedPath = outPath
		record.Metadata = meta
		record.EncryptedSize = meta.FileSize
		result.SuccessfulFiles++
		result.TotalOriginalSize += entry.EncryptedSize
		result.TotalEncryptedSize += meta.FileSize
		result.Files = append(result.Files, record)
	}

	if result.TotalOriginalSize > 0 {
		result.CompressionRatio = float64(result.TotalEncryptedSize) / float64(result.TotalOriginalSize)
	}
	return result, nil
}

// ReadManifest loads and parses a directory manifest.
func ReadManifest(path string) (*DirectoryManifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- caller-controlled path is the API contract
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeManifest, "failed to read manifest")
	}
	var manifest DirectoryManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeManifest, "manifest is not valid JSON")
	}
	return &manifest, nil
}

func writeManifest(path string, manifest *DirectoryManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return goerrors.Wrap(err, ErrCodeManifest, "failed to encode manifest")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return goerrors.Wrap(err, ErrCodeManifest, "failed to write manifest")
	}
	return nil
}

func extensionAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
