package media

import (
	"context"
	"io"
	"os"

	mediadomain "filedrop/internal/domain/media"
	"filedrop/internal/domain/upload"
)

// FileStore is an application port for the flat storage directory.
type FileStore interface {
	ResolveFile(name string) (string, error)
	Save(name string, r io.Reader) (written int64, overwritten bool, err error)
	Open(name string) (*os.File, os.FileInfo, error)
	Delete(name string) error
}

// Transcoder is an application port for HLS transcoding. The channel yields
// one result.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, originalFilename string) <-chan mediadomain.TranscodeResult
}

// Registry is an application port for the in-memory file listing.
type Registry interface {
	ListAll() []upload.Record
	RecordUpload(filename, uploader string, isStreaming bool, manifestPath string)
}
