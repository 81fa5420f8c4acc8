package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filedrop/internal/application/registry"
	mediadomain "filedrop/internal/domain/media"
	"filedrop/internal/domain/upload"
	"filedrop/internal/infrastructure/filesystem"
	"filedrop/internal/infrastructure/watcher"
)

const watchDebounce = 50 * time.Millisecond

type stubTranscoder struct {
	mu     sync.Mutex
	calls  []string
	err    error
	ctxErr error
	paths  *filesystem.Store
	// started, when set, is closed on the first call, which then blocks until
	// its context is done.
	started chan struct{}
}

func (s *stubTranscoder) Transcode(ctx context.Context, inputPath, originalFilename string) <-chan mediadomain.TranscodeResult {
	s.mu.Lock()
	s.calls = append(s.calls, originalFilename)
	s.ctxErr = ctx.Err()
	started := s.started
	s.started = nil
	s.mu.Unlock()

	out := make(chan mediadomain.TranscodeResult, 1)
	if started != nil {
		close(started)
		go func() {
			<-ctx.Done()
			out <- mediadomain.TranscodeResult{Err: ctx.Err()}
			close(out)
		}()
		return out
	}
	if _, err := os.Stat(inputPath); err != nil {
		out <- mediadomain.TranscodeResult{Err: err}
	} else if s.err != nil {
		out <- mediadomain.TranscodeResult{Err: s.err}
	} else {
		_, _, manifest := s.paths.HLSPaths(originalFilename)
		out <- mediadomain.TranscodeResult{ManifestURL: manifest}
	}
	close(out)
	return out
}

type fixture struct {
	svc        *Service
	store      *filesystem.Store
	registry   *registry.Registry
	transcoder *stubTranscoder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	store := filesystem.NewStore(filepath.Join(root, "files"), filepath.Join(root, "hls"))
	require.NoError(t, store.EnsureDirs())
	reg := registry.New(store, nil)
	tr := &stubTranscoder{paths: store}
	return fixture{svc: NewService(store, tr, reg), store: store, registry: reg, transcoder: tr}
}

// watch feeds real directory events from the fixture's storage into its
// registry.
func (f fixture) watch(t *testing.T) {
	t.Helper()
	w, err := watcher.New(f.store.FilesRoot(), watchDebounce, f.registry.OnFilesystemEvent)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(w.Stop)
}

func (f fixture) record(name string) (upload.Record, bool) {
	for _, rec := range f.svc.ListFiles() {
		if rec.Filename == name {
			return rec, true
		}
	}
	return upload.Record{}, false
}

func (f fixture) stored(name string) bool {
	_, err := os.Stat(filepath.Join(f.store.FilesRoot(), name))
	return err == nil
}

func TestHandleUpload_VideoBecomesStreaming(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{
		Filename: "clip.MP4",
		Content:  strings.NewReader("frames"),
	})
	require.NoError(t, err)
	assert.True(t, res.IsStreaming)
	assert.Equal(t, "/hls/clip/playlist.m3u8", res.ManifestPath)
	assert.Equal(t, int64(6), res.Size)

	assert.Equal(t, []upload.Record{{
		Filename:           "clip.MP4",
		Uploader:           "alice",
		IsStreaming:        true,
		StreamManifestPath: "/hls/clip/playlist.m3u8",
	}}, f.svc.ListFiles())
	assert.True(t, f.stored("clip.MP4"))
}

func TestHandleUpload_NonVideoSkipsTranscoder(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.HandleUpload(context.Background(), "bob", IncomingFile{
		Filename: "notes.pdf",
		Content:  strings.NewReader("%PDF"),
	})
	require.NoError(t, err)
	assert.False(t, res.IsStreaming)
	assert.Empty(t, f.transcoder.calls)

	rec, ok := f.record("notes.pdf")
	require.True(t, ok)
	assert.Equal(t, upload.Record{Filename: "notes.pdf", Uploader: "bob"}, rec)
}

func TestHandleUpload_TranscodeFailureKeepsPlainFile(t *testing.T) {
	f := newFixture(t)
	f.transcoder.err = errors.New("ffmpeg exited with status 1")

	res, err := f.svc.HandleUpload(context.Background(), "carol", IncomingFile{
		Filename: "movie.mov",
		Content:  strings.NewReader("broken"),
	})
	require.NoError(t, err)
	assert.False(t, res.IsStreaming)
	assert.Empty(t, res.ManifestPath)

	rec, ok := f.record("movie.mov")
	require.True(t, ok)
	assert.False(t, rec.IsStreaming)
	assert.Empty(t, rec.StreamManifestPath)
	assert.True(t, f.stored("movie.mov"))
}

func TestHandleUpload_TranscodeSurvivesCanceledRequest(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.HandleUpload(ctx, "alice", IncomingFile{
		Filename: "clip.webm",
		Content:  strings.NewReader("frames"),
	})
	require.NoError(t, err)
	assert.True(t, res.IsStreaming)
	assert.NoError(t, f.transcoder.ctxErr)
}

func TestHandleUpload_OverwriteReplacesRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{Filename: "a.txt", Content: strings.NewReader("one")})
	require.NoError(t, err)
	res, err := f.svc.HandleUpload(context.Background(), "bob", IncomingFile{Filename: "a.txt", Content: strings.NewReader("two!")})
	require.NoError(t, err)
	assert.True(t, res.Overwritten)

	records := f.svc.ListFiles()
	require.Len(t, records, 1)
	assert.Equal(t, "bob", records[0].Uploader)

	data, err := os.ReadFile(filepath.Join(f.store.FilesRoot(), "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two!", string(data))
}

func TestHandleUpload_RejectsBadNames(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"", "../escape.txt", "dir/file.txt", ".."} {
		_, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{Filename: name, Content: strings.NewReader("x")})
		assert.ErrorIs(t, err, mediadomain.ErrInvalidFileName, name)
	}
	assert.Empty(t, f.svc.ListFiles())
}

func TestHandleUpload_MissingContent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{Filename: "a.txt"})
	require.Error(t, err)
	assert.Empty(t, f.svc.ListFiles())
}

func TestDeleteFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{Filename: "a.txt", Content: strings.NewReader("x")})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteFile("a.txt"))
	assert.False(t, f.stored("a.txt"))

	err = f.svc.DeleteFile("a.txt")
	require.Error(t, err)
	assert.True(t, filesystem.IsNotFound(err))
}

func TestOpenFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{Filename: "a.txt", Content: strings.NewReader("hello")})
	require.NoError(t, err)

	file, info, err := f.svc.OpenFile("a.txt")
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, int64(5), info.Size())

	_, _, err = f.svc.OpenFile("missing.txt")
	assert.True(t, filesystem.IsNotFound(err))
}

func TestHandleUpload_CancelTranscodesFallsBackToPlainFile(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	f.transcoder.started = started

	type outcome struct {
		res mediadomain.UploadResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{
			Filename: "clip.MP4",
			Content:  strings.NewReader("frames"),
		})
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("transcoder was not called")
	}
	f.svc.CancelTranscodes()

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.False(t, got.res.IsStreaming)
	case <-time.After(3 * time.Second):
		t.Fatal("upload did not return after transcodes were cancelled")
	}

	rec, ok := f.record("clip.MP4")
	require.True(t, ok)
	assert.Equal(t, upload.Record{Filename: "clip.MP4", Uploader: "alice"}, rec)
	assert.True(t, f.stored("clip.MP4"))
}

func TestWatchedUpload_KeepsProvenanceAfterOwnWriteSettles(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     upload.Record
	}{
		{
			name:     "video",
			filename: "clip.MP4",
			want:     upload.Record{Filename: "clip.MP4", Uploader: "alice", IsStreaming: true, StreamManifestPath: "/hls/clip/playlist.m3u8"},
		},
		{
			name:     "plain file",
			filename: "notes.pdf",
			want:     upload.Record{Filename: "notes.pdf", Uploader: "alice"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.watch(t)

			_, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{
				Filename: tc.filename,
				Content:  strings.NewReader("content"),
			})
			require.NoError(t, err)

			assert.Never(t, func() bool {
				rec, ok := f.record(tc.filename)
				return !ok || rec != tc.want
			}, 10*watchDebounce, watchDebounce/5)
		})
	}
}

func TestWatchedDelete_RemovesRecordAfterDebounce(t *testing.T) {
	f := newFixture(t)
	f.watch(t)

	_, err := f.svc.HandleUpload(context.Background(), "alice", IncomingFile{
		Filename: "clip.MP4",
		Content:  strings.NewReader("frames"),
	})
	require.NoError(t, err)
	_, err = f.svc.HandleUpload(context.Background(), "bob", IncomingFile{
		Filename: "notes.pdf",
		Content:  strings.NewReader("%PDF"),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteFile("clip.MP4"))

	assert.Eventually(t, func() bool {
		_, ok := f.record("clip.MP4")
		return !ok
	}, watchDebounce+2*time.Second, watchDebounce/5)
	rec, ok := f.record("notes.pdf")
	require.True(t, ok)
	assert.Equal(t, "notes.pdf", rec.Filename)
}

func TestWatchedExternalFile_AppearsAsScanned(t *testing.T) {
	f := newFixture(t)
	f.watch(t)

	require.NoError(t, os.WriteFile(filepath.Join(f.store.FilesRoot(), "dropped.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		rec, ok := f.record("dropped.txt")
		return ok && rec.Uploader == upload.UnknownUploader
	}, watchDebounce+2*time.Second, watchDebounce/5)
}
