package media

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"filedrop/internal/domain/media"
	"filedrop/internal/domain/upload"
	"filedrop/internal/logging"
	"filedrop/internal/metrics"
)

// IncomingFile is one received upload: its client-side name and the
// temporary copy the multipart parser produced.
type IncomingFile struct {
	Filename string
	Content  io.Reader
}

// Service handles the upload, listing, download and delete use cases.
type Service struct {
	store      FileStore
	transcoder Transcoder
	registry   Registry

	lifetime         context.Context
	cancelTranscodes context.CancelFunc
}

// NewService creates a media use-case service with injected ports.
func NewService(store FileStore, transcoder Transcoder, registry Registry) *Service {
	lifetime, cancel := context.WithCancel(context.Background())
	return &Service{
		store:            store,
		transcoder:       transcoder,
		registry:         registry,
		lifetime:         lifetime,
		cancelTranscodes: cancel,
	}
}

// CancelTranscodes aborts in-flight and future transcodes. Uploads waiting on
// them complete as plain files.
func (s *Service) CancelTranscodes() {
	s.cancelTranscodes()
}

// ListFiles returns the registry snapshot.
func (s *Service) ListFiles() []upload.Record {
	return s.registry.ListAll()
}

// HandleUpload persists the file under its original name, transcodes videos,
// and records the result. A failed transcode degrades to a plain record; only
// storage failures are returned. The call returns after transcoding finishes.
func (s *Service) HandleUpload(ctx context.Context, uploader string, file IncomingFile) (media.UploadResult, error) {
	logger := logging.WithContext(ctx)

	name, err := media.NormalizeFileName(file.Filename)
	if err != nil {
		metrics.RecordUpload(false, 0)
		return media.UploadResult{}, err
	}
	if file.Content == nil {
		metrics.RecordUpload(false, 0)
		return media.UploadResult{}, fmt.Errorf("upload %s: empty content", name)
	}

	written, overwritten, err := s.store.Save(name, file.Content)
	if err != nil {
		metrics.RecordUpload(false, 0)
		return media.UploadResult{}, fmt.Errorf("store upload: %w", err)
	}
	metrics.RecordUpload(true, written)

	if overwritten {
		logger.Warn("upload replaced existing file", zap.String("filename", name), zap.String("uploader", uploader))
	}
	logger.Info("uploaded file",
		zap.String("filename", name),
		zap.String("uploader", uploader),
		zap.Int64("size", written))

	result := media.UploadResult{
		Filename:    name,
		Uploader:    uploader,
		Size:        written,
		Overwritten: overwritten,
	}

	if media.IsVideoFile(name) && s.transcoder != nil {
		if manifest, ok := s.transcode(ctx, name); ok {
			result.IsStreaming = true
			result.ManifestPath = manifest
		}
	}

	s.registry.RecordUpload(name, uploader, result.IsStreaming, result.ManifestPath)
	return result, nil
}

// transcode runs the transcoder detached from request cancellation. It is
// bounded by the transcoder's own timeout and by CancelTranscodes.
func (s *Service) transcode(ctx context.Context, name string) (string, bool) {
	logger := logging.WithContext(ctx)

	inputPath, err := s.store.ResolveFile(name)
	if err != nil {
		logger.Error("resolve upload for transcoding", zap.String("filename", name), zap.Error(err))
		return "", false
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(s.lifetime, cancel)
	defer stop()

	logger.Info("processing video file", zap.String("filename", name))
	res, ok := <-s.transcoder.Transcode(runCtx, inputPath, name)
	if !ok {
		logger.Error("transcoder returned no result", zap.String("filename", name))
		return "", false
	}
	if !res.OK() {
		logger.Error("HLS generation failed, keeping plain file",
			zap.String("filename", name),
			zap.Error(res.Err))
		return "", false
	}
	return res.ManifestURL, true
}

// OpenFile opens a stored file for download.
func (s *Service) OpenFile(name string) (*os.File, os.FileInfo, error) {
	return s.store.Open(name)
}

// DeleteFile removes a stored file. The registry catches up through the
// directory watcher.
func (s *Service) DeleteFile(name string) error {
	if err := s.store.Delete(name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}
