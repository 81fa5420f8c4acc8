package media

import (
	"errors"
	"path"
	"strings"
)

// ErrInvalidFileName is returned for names that would escape the storage directory.
var ErrInvalidFileName = errors.New("invalid file name")

var videoExts = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
}

// IsVideoFile reports whether name carries one of the transcodable extensions.
func IsVideoFile(name string) bool {
	return videoExts[strings.ToLower(path.Ext(strings.TrimSpace(name)))]
}

// NormalizeFileName validates an uploaded or requested file name. The name is
// kept as-is; only names that are empty or contain path components are rejected.
func NormalizeFileName(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrInvalidFileName
	}
	if strings.ContainsAny(raw, "/\\") || strings.ContainsRune(raw, 0) {
		return "", ErrInvalidFileName
	}
	if raw == "." || raw == ".." {
		return "", ErrInvalidFileName
	}
	return raw, nil
}

// StreamName is the HLS output directory name for a file: its base name
// without the extension.
func StreamName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
