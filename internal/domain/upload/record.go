package upload

// UnknownUploader marks records rebuilt from a directory scan.
const UnknownUploader = "unknown"

// Record describes one file known to the registry.
type Record struct {
	Filename string
	Uploader string
	// IsStreaming is true when an HLS manifest was produced for the file.
	IsStreaming bool
	// StreamManifestPath is set iff IsStreaming.
	StreamManifestPath string
}

// NewRecord builds a record, dropping the manifest path unless streaming.
func NewRecord(filename, uploader string, isStreaming bool, manifestPath string) Record {
	if uploader == "" {
		uploader = UnknownUploader
	}
	if !isStreaming || manifestPath == "" {
		return Record{Filename: filename, Uploader: uploader}
	}
	return Record{
		Filename:           filename,
		Uploader:           uploader,
		IsStreaming:        true,
		StreamManifestPath: manifestPath,
	}
}

// Scanned builds the record a rescan produces for a file on disk.
func Scanned(filename string) Record {
	return Record{Filename: filename, Uploader: UnknownUploader}
}
