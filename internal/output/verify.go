package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// FileHasher digests a stream and reports its size.
type FileHasher interface {
	HashFile(r io.Reader) (string, int64, error)
}

// Mismatch describes an artifact that no longer matches its manifest entry.
type Mismatch struct {
	Name   string
	Reason string
}

// Verify reads the manifest from fsys and checks every listed artifact's size
// and digest. A missing manifest is an error; missing artifacts are mismatches.
func Verify(fsys fs.FS, manifestName string, hasher FileHasher) (Manifest, []Mismatch, error) {
	if manifestName == "" {
		manifestName = DefaultManifestName
	}
	raw, err := fs.ReadFile(fsys, manifestName)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, nil, fmt.Errorf("decode manifest: %w", err)
	}

	var mismatches []Mismatch
	for _, file := range m.Files {
		reason, err := checkFile(fsys, file, hasher)
		if err != nil {
			return m, mismatches, err
		}
		if reason != "" {
			mismatches = append(mismatches, Mismatch{Name: file.Name, Reason: reason})
		}
	}
	return m, mismatches, nil
}

func checkFile(fsys fs.FS, file ManifestFile, hasher FileHasher) (string, error) {
	f, err := fsys.Open(file.Name)
	if errors.Is(err, fs.ErrNotExist) {
		return "missing", nil
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer f.Close()

	sum, size, err := hasher.HashFile(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", file.Name, err)
	}
	switch {
	case size != int64(file.Bytes):
		return fmt.Sprintf("size %d, manifest says %d", size, file.Bytes), nil
	case sum != file.SHA256:
		return "sha256 mismatch", nil
	}
	return "", nil
}
