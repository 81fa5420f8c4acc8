// Package registry keeps the in-memory listing of the storage directory.
//
// The filesystem is authoritative: the registry is a projection that can lag
// behind it. Uploads record full provenance; any filesystem event triggers a
// rescan whose RefreshPolicy decides what survives. An upload keeps its record
// through rescans until a change observed after it touches some other path.
package registry

import (
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"filedrop/internal/domain/upload"
	"filedrop/internal/logging"
	"filedrop/internal/metrics"
)

// DirectoryLister is the storage port used by rescans.
type DirectoryLister interface {
	ListFiles() ([]string, error)
}

// RefreshPolicy rebuilds the table from a directory listing.
type RefreshPolicy interface {
	Rebuild(previous map[string]upload.Record, names []string) []upload.Record
}

// FullRescan drops all provenance: every file becomes an "unknown",
// non-streaming record.
type FullRescan struct{}

func (FullRescan) Rebuild(_ map[string]upload.Record, names []string) []upload.Record {
	out := make([]upload.Record, 0, len(names))
	for _, name := range names {
		out = append(out, upload.Scanned(name))
	}
	return out
}

// PreservingRescan keeps the previous record for files that are still present
// and falls back to a scanned record for new ones.
type PreservingRescan struct{}

func (PreservingRescan) Rebuild(previous map[string]upload.Record, names []string) []upload.Record {
	out := make([]upload.Record, 0, len(names))
	for _, name := range names {
		if rec, ok := previous[name]; ok {
			out = append(out, rec)
			continue
		}
		out = append(out, upload.Scanned(name))
	}
	return out
}

// Registry is safe for concurrent use. Writers are serialized, so the last
// completed rescan is the visible snapshot.
type Registry struct {
	source DirectoryLister
	policy RefreshPolicy

	rescanMu sync.Mutex

	mu      sync.RWMutex
	records map[string]upload.Record
	order   []string
	uploads map[string]stampedUpload
}

type stampedUpload struct {
	record     upload.Record
	recordedAt time.Time
}

// trigger is the filesystem change a rescan reacts to. A zero path means the
// rescan was requested directly.
type trigger struct {
	kind       string
	path       string
	observedAt time.Time
}

// supersedes reports whether the change is newer than u and not u's own write.
// Writes to the uploaded file itself may be observed after it was recorded.
func (t trigger) supersedes(u stampedUpload) bool {
	if u.recordedAt.After(t.observedAt) {
		return false
	}
	if t.path != "" && filepath.Base(t.path) == u.record.Filename {
		switch t.kind {
		case "create", "modify", "chmod":
			return false
		}
	}
	return true
}

// New creates an empty registry. A nil policy selects FullRescan.
func New(source DirectoryLister, policy RefreshPolicy) *Registry {
	if policy == nil {
		policy = FullRescan{}
	}
	return &Registry{
		source:  source,
		policy:  policy,
		records: make(map[string]upload.Record),
		uploads: make(map[string]stampedUpload),
	}
}

// ListAll returns a copy of the current snapshot without touching the disk.
func (r *Registry) ListAll() []upload.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]upload.Record, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.records[name])
	}
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// RecordUpload upserts a record with full provenance. An existing entry keeps
// its position in the listing.
func (r *Registry) RecordUpload(filename, uploader string, isStreaming bool, manifestPath string) {
	rec := upload.NewRecord(filename, uploader, isStreaming, manifestPath)

	r.mu.Lock()
	if _, exists := r.records[filename]; !exists {
		r.order = append(r.order, filename)
	}
	r.records[filename] = rec
	r.uploads[filename] = stampedUpload{record: rec, recordedAt: time.Now()}
	size := len(r.order)
	r.mu.Unlock()

	metrics.SetRegistrySize(size)
}

// OnFilesystemEvent reacts to any change under the storage directory with a
// rescan. observedAt is when the change was seen.
func (r *Registry) OnFilesystemEvent(kind, path string, observedAt time.Time) {
	logging.Info("file event", zap.String("event", kind), zap.String("path", path))
	_ = r.rescan(trigger{kind: kind, path: path, observedAt: observedAt})
}

// Rescan lists the storage directory and replaces the table. On failure the
// previous snapshot is kept. Rescans run one at a time; the directory is read
// without holding the table lock so ListAll never waits on disk I/O.
func (r *Registry) Rescan() error {
	return r.rescan(trigger{observedAt: time.Now()})
}

func (r *Registry) rescan(t trigger) error {
	r.rescanMu.Lock()
	defer r.rescanMu.Unlock()

	names, err := r.source.ListFiles()
	if err != nil {
		logging.Error("registry rescan failed", zap.Error(err))
		metrics.RecordRescan(0, err)
		return err
	}

	r.mu.Lock()
	rebuilt := r.policy.Rebuild(r.records, names)
	for name, u := range r.uploads {
		if t.supersedes(u) {
			delete(r.uploads, name)
		}
	}
	for i, rec := range rebuilt {
		if u, ok := r.uploads[rec.Filename]; ok {
			rebuilt[i] = u.record
		}
	}
	records := make(map[string]upload.Record, len(rebuilt))
	order := make([]string, 0, len(rebuilt))
	for _, rec := range rebuilt {
		if _, dup := records[rec.Filename]; !dup {
			order = append(order, rec.Filename)
		}
		records[rec.Filename] = rec
	}
	r.records = records
	r.order = order
	r.mu.Unlock()

	metrics.RecordRescan(len(order), nil)
	return nil
}
