package media

// TranscodeResult is the outcome of one HLS transcode.
type TranscodeResult struct {
	// ManifestURL is the public path of playlist.m3u8, set on success.
	ManifestURL string
	Err         error
}

// OK reports whether the transcode produced a manifest.
func (r TranscodeResult) OK() bool {
	return r.Err == nil && r.ManifestURL != ""
}

// UploadResult is returned to the transport layer once an upload is recorded.
type UploadResult struct {
	Filename     string
	Uploader     string
	Size         int64
	Overwritten  bool
	IsStreaming  bool
	ManifestPath string
}
