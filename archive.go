// archive.go: Directory archiving (tar + xz) so a whole tree can be
// encrypted as a single container.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	goerrors "github.com/agilira/go-errors"
	"github.com/ulikunitz/xz"
)

// ArchiveExt is the suffix of compressed directory archives.
const ArchiveExt = ".tar.xz"

// CompressDirectory packs dir into a tar stream, xz-compresses it and
// writes the result to archivePath. Dot-directories and package/build
// directories are skipped, matching EncryptDirectory's traversal.
func CompressDirectory(dir, archivePath string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return goerrors.Wrap(err, ErrCodeArchive, "failed to stat directory")
	}
	if !info.IsDir() {
		return goerrors.New(ErrCodeArchive, "input path is not a directory")
	}

	out, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 -- caller-controlled path is the API contract
	if err != nil {
		return goerrors.Wrap(err, ErrCodeArchive, "failed to create archive")
	}
	defer func() { _ = out.Close() }()

	xzw, err := xz.NewWriter(out)
	if err != nil {
		return goerrors.Wrap(err, ErrCodeArchive, "failed to initialize compressor")
	}
	tw := tar.NewWriter(xzw)

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == dir {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(path) // #nosec G304 -- path comes from the walk rooted at dir
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		_ = f.Close()
		return err
	})
	if walkErr != nil {
		return goerrors.Wrap(walkErr, ErrCodeArchive, "failed to archive directory")
	}

	if err := tw.Close(); err != nil {
		return goerrors.Wrap(err, ErrCodeArchive, "failed to finalize tar stream")
	}
	if err := xzw.Close(); err != nil {
		return goerrors.Wrap(err, ErrCodeArchive, "failed to finalize compressed stream")
	}
	return out.Close()
}

// ExtractArchive unpacks a tar+xz archive into outDir and returns the
// extracted file paths. Entries that would escape outDir are rejected.
func ExtractArchive(archivePath, outDir string) ([]string, error) {
	f, err := os.Open(archivePath) // #nosec G304 -- caller-controlled path is the API contract
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to open archive")
	}
	defer func() { _ = f.Close() }()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to initialize decompressor")
	}
	tr := tar.NewReader(xzr)

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to create output directory")
	}
	root, err := filepath.Abs(outDir)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to resolve output directory")
	}

	var extracted []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to read tar entry")
		}

		target := filepath.Join(root, filepath.FromSlash(hdr.Name))
		// Reject entries escaping the output directory.
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, goerrors.New(ErrCodeArchive, "archive entry escapes output directory: "+hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to create directory")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to create directory")
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 -- target is confined to root above
			if err != nil {
				return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to create file")
			}
			if _, err := io.Copy(out, tr); err != nil { // #nosec G110 -- archives come from the caller, not the network
				_ = out.Close()
				return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to extract file")
			}
			if err := out.Close(); err != nil {
				return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to close extracted file")
			}
			extracted = append(extracted, target)
		}
	}
	return extracted, nil
}

// EncryptArchive compresses dir into a temporary tar+xz archive and
// encrypts it as a single container at outPath.
func EncryptArchive(dir, outPath string, opts *FileOptions) (*FileMetadata, error) {
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".aegis-archive-*"+ArchiveExt)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to create temporary archive")
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := CompressDirectory(dir, tmpPath); err != nil {
		return nil, err
	}
	meta, err := EncryptFile(tmpPath, outPath, opts)
	if err != nil {
		return nil, err
	}
	meta.OriginalName = filepath.Base(dir) + ArchiveExt
	return meta, nil
}

// DecryptArchive decrypts a container produced by EncryptArchive and
// extracts its contents into outDir.
func DecryptArchive(path, outDir string, opts *FileOptions) ([]string, error) {
	_, plaintext, err := decryptContainer(path, opts)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", ".aegis-archive-*"+ArchiveExt)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to create temporary archive")
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(plaintext); err != nil {
		_ = tmp.Close()
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to stage decrypted archive")
	}
	if err := tmp.Close(); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeArchive, "failed to stage decrypted archive")
	}

	return ExtractArchive(tmpPath, outDir)
}
