package filesystem

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filedrop/internal/domain/media"
)

// PlaylistName is the manifest file written into every HLS output directory.
const PlaylistName = "playlist.m3u8"

// HLSURLPrefix is the URL prefix the HLS output root is mounted at.
const HLSURLPrefix = "/hls/"

// Store manages uploaded files and HLS output paths.
type Store struct {
	FilesDir string
	HLSDir   string
}

// NewStore creates filesystem adapter with configured roots.
func NewStore(filesDir, hlsDir string) *Store {
	return &Store{FilesDir: filesDir, HLSDir: hlsDir}
}

// EnsureDirs creates filesystem roots used by service.
func (s *Store) EnsureDirs() error {
	if err := os.MkdirAll(s.FilesDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(s.HLSDir, 0o755)
}

// FilesRoot returns the directory that holds uploaded files.
func (s *Store) FilesRoot() string {
	return s.FilesDir
}

// ListFiles returns the names of the regular files directly under the storage directory.
func (s *Store) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(s.FilesDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ResolveFile validates a file name and returns its absolute location.
func (s *Store) ResolveFile(raw string) (string, error) {
	name, err := media.NormalizeFileName(raw)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.FilesDir, name)
	if !isWithinDir(s.FilesDir, full) {
		return "", media.ErrInvalidFileName
	}
	return full, nil
}

// Save writes r to the named file, replacing any existing file of that name.
// It reports the bytes written and whether a file was overwritten.
func (s *Store) Save(name string, r io.Reader) (int64, bool, error) {
	full, err := s.ResolveFile(name)
	if err != nil {
		return 0, false, err
	}

	existed := false
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		existed = true
	}

	dst, err := os.Create(full)
	if err != nil {
		return 0, existed, err
	}
	written, copyErr := io.Copy(dst, r)
	closeErr := dst.Close()
	if copyErr != nil {
		return written, existed, fmt.Errorf("write %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return written, existed, fmt.Errorf("close %s: %w", name, closeErr)
	}
	return written, existed, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	full, err := s.ResolveFile(name)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	return file, info, nil
}

// Delete removes a stored file and, for videos, the HLS output derived from
// it unless another stored video shares the same stream name.
func (s *Store) Delete(name string) error {
	full, err := s.ResolveFile(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return err
	}
	if !media.IsVideoFile(name) {
		return nil
	}
	return s.removeStream(name)
}

func (s *Store) removeStream(name string) error {
	stream := media.StreamName(name)
	names, err := s.ListFiles()
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, other := range names {
		if media.IsVideoFile(other) && media.StreamName(other) == stream {
			return nil
		}
	}

	outputDir, _, _ := s.HLSPaths(name)
	if !isWithinDir(s.HLSDir, outputDir) {
		return nil
	}
	if err := os.RemoveAll(outputDir); err != nil {
		return fmt.Errorf("remove stream %s: %w", stream, err)
	}
	return nil
}

// HLSPaths builds the output directory, manifest path and public manifest URL
// for a file name.
func (s *Store) HLSPaths(filename string) (string, string, string) {
	base := media.StreamName(filename)
	outputDir := filepath.Join(s.HLSDir, base)
	playlistPath := filepath.Join(outputDir, PlaylistName)
	urlPath := HLSURLPrefix + url.PathEscape(base) + "/" + PlaylistName
	return outputDir, playlistPath, urlPath
}

func isWithinDir(basePath, targetPath string) bool {
	baseAbs, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return false
	}
	return true
}

// IsNotFound reports whether err means the file does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
