package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go-tube-download/internal/avoidance"
	"go-tube-download/internal/database"
	"go-tube-download/internal/extractor"
	"go-tube-download/internal/helpers"
	"go-tube-download/internal/models"
	"go-tube-download/internal/progress"
	"go-tube-download/internal/queue"
	"go-tube-download/internal/recent"

	log "github.com/sirupsen/logrus"
)

// Extractor is the subprocess adapter surface the manager drives.
type Extractor interface {
	Probe(ctx context.Context, url, userAgent string) (models.VideoInfo, error)
	Download(ctx context.Context, req models.DownloadRequest, userAgent string) (string, error)
	Cancel(sessionID string) error
	RefreshCookies(ctx context.Context, browser string) error
	Events() <-chan extractor.Event
}

// Pacer shapes outbound platform requests.
type Pacer interface {
	BeforeRequest(ctx context.Context) error
	SelectIdentity() avoidance.Identity
}

// ThumbFetcher pulls thumbnail images over HTTP.
type ThumbFetcher interface {
	DownloadFile(targetFilepath, url string, headers map[string]string) (string, error)
}

// Options tunes optional manager behaviour.
type Options struct {
	Browser        string // Browser cookies are refreshed from
	SaveThumbnails bool
	Thumbs         ThumbFetcher
	SavePath       string // Fallback save dir when none is remembered
}

// Manager is the composition root: it owns the queue, the session/entry
// correlation, and the single goroutine consuming adapter events.
type Manager struct {
	queue  *queue.Queue
	corr   *progress.Correlator
	policy Pacer
	ext    Extractor
	store  *recent.Store
	db     *database.DB
	opts   Options

	mu          sync.Mutex
	authRetried map[string]bool // entries that already used their refresh-and-retry

	done chan struct{}
	wg   sync.WaitGroup
}

// New wires up a Manager. Call Run to start consuming adapter events and
// Close to stop.
func New(ext Extractor, policy Pacer, store *recent.Store, db *database.DB, opts Options) *Manager {
	if opts.Browser == "" {
		opts.Browser = "chrome"
	}
	return &Manager{
		queue:       queue.New(),
		corr:        progress.NewCorrelator(),
		policy:      policy,
		ext:         ext,
		store:       store,
		db:          db,
		opts:        opts,
		authRetried: make(map[string]bool),
	}
}

// Run starts the event loop. Events for all sessions flow through this one
// goroutine, which preserves per-entry ordering.
func (m *Manager) Run() {
	m.wg.Add(1)
	m.done = make(chan struct{})
	go func() {
		defer m.wg.Done()
		events := m.ext.Events()
		for {
			select {
			case <-m.done:
				return
			case ev := <-events:
				m.handleEvent(ev)
			}
		}
	}()
}

// Close stops the event loop and waits for in-flight handling to finish.
func (m *Manager) Close() {
	if m.done != nil {
		close(m.done)
	}
	m.wg.Wait()
}

// Enqueue adds a request to the queue in Pending state and returns the
// entry id.
func (m *Manager) Enqueue(req models.DownloadRequest) string {
	title := req.Title
	if title == "" {
		title = req.URL
	}
	return m.queue.Enqueue(req, title, req.Quality)
}

// Start launches the download for a Pending or Failed entry: pacing first,
// then the subprocess, then the session binding. A launch failing with
// ErrAuthRequired gets one cookie refresh and one retry before the entry is
// failed.
func (m *Manager) Start(ctx context.Context, entryID string) error {
	if err := m.queue.MarkDownloading(entryID); err != nil {
		return err
	}
	m.clearAuthRetry(entryID)
	e, err := m.queue.Get(entryID)
	if err != nil {
		return err
	}

	if err := m.launch(ctx, entryID, e.Request); err != nil {
		if errors.Is(err, extractor.ErrAuthRequired) && m.markAuthRetry(entryID) {
			log.WithField("entry", entryID).Info("Authentication required, refreshing cookies and retrying once")
			if refreshErr := m.ext.RefreshCookies(ctx, m.opts.Browser); refreshErr != nil {
				m.failEntry(entryID, fmt.Errorf("cookie refresh failed: %w", refreshErr))
				return nil
			}
			if retryErr := m.launch(ctx, entryID, e.Request); retryErr != nil {
				m.failEntry(entryID, retryErr)
			}
			return nil
		}
		m.failEntry(entryID, err)
		return nil
	}
	return nil
}

// launch performs pacing, spawns the session and binds it to the entry.
func (m *Manager) launch(ctx context.Context, entryID string, req models.DownloadRequest) error {
	if err := m.policy.BeforeRequest(ctx); err != nil {
		return err
	}
	identity := m.policy.SelectIdentity()
	sessionID, err := m.ext.Download(ctx, req, identity.UserAgent)
	if err != nil {
		return err
	}
	m.corr.Bind(sessionID, entryID)
	return nil
}

// Cancel stops an active download and returns the entry to Pending. The
// mapping is dropped before the kill so the session's terminal failure event
// cannot touch the entry.
func (m *Manager) Cancel(entryID string) error {
	if sessionID, ok := m.corr.DropEntry(entryID); ok {
		if err := m.ext.Cancel(sessionID); err != nil && !errors.Is(err, extractor.ErrNotActive) {
			log.WithError(err).Warnf("Failed to cancel session %s", sessionID)
		}
	}
	m.clearAuthRetry(entryID)
	return m.queue.CancelToPending(entryID)
}

// Remove deletes an entry from the queue, cancelling it first if active.
func (m *Manager) Remove(entryID string) error {
	if sessionID, ok := m.corr.DropEntry(entryID); ok {
		if err := m.ext.Cancel(sessionID); err != nil && !errors.Is(err, extractor.ErrNotActive) {
			log.WithError(err).Warnf("Failed to cancel session %s", sessionID)
		}
	}
	m.clearAuthRetry(entryID)
	return m.queue.Remove(entryID)
}

// ListQueue returns all queue entries in enqueue order.
func (m *Manager) ListQueue() []queue.Entry {
	return m.queue.List()
}

// GetEntry returns one queue entry.
func (m *Manager) GetEntry(entryID string) (queue.Entry, error) {
	return m.queue.Get(entryID)
}

// Probe fetches metadata for a URL with pacing applied. An auth failure gets
// one cookie refresh and one retry, mirroring the download flow.
func (m *Manager) Probe(ctx context.Context, url string) (models.VideoInfo, error) {
	info, err := m.probeOnce(ctx, url)
	if err == nil || !errors.Is(err, extractor.ErrAuthRequired) {
		return info, err
	}

	log.Info("Probe hit an authentication wall, refreshing cookies and retrying once")
	if refreshErr := m.ext.RefreshCookies(ctx, m.opts.Browser); refreshErr != nil {
		return models.VideoInfo{}, fmt.Errorf("cookie refresh failed: %w", refreshErr)
	}
	return m.probeOnce(ctx, url)
}

func (m *Manager) probeOnce(ctx context.Context, url string) (models.VideoInfo, error) {
	if err := m.policy.BeforeRequest(ctx); err != nil {
		return models.VideoInfo{}, err
	}
	identity := m.policy.SelectIdentity()
	return m.ext.Probe(ctx, url, identity.UserAgent)
}

// handleEvent applies one adapter event. Unknown sessions are no-ops.
func (m *Manager) handleEvent(ev extractor.Event) {
	entryID, ok := m.corr.Resolve(ev.SessionID)
	if !ok {
		log.WithField("session", ev.SessionID).Debug("Dropping event for unknown session")
		return
	}

	switch ev.Kind {
	case extractor.EventProgress:
		m.queue.ApplyProgress(entryID, ev.Percent, ev.Speed, ev.ETA)

	case extractor.EventCompleted:
		// Drop before the transition: a redelivery resolves to nothing
		m.corr.Drop(ev.SessionID)
		m.clearAuthRetry(entryID)
		snap, err := m.queue.Complete(entryID)
		if err != nil {
			log.WithError(err).Warnf("Completion for entry %s not applicable", entryID)
			return
		}
		m.recordCompletion(snap, ev.FilePath)

	case extractor.EventFailed:
		m.corr.Drop(ev.SessionID)
		if errors.Is(ev.Err, extractor.ErrAuthRequired) && m.markAuthRetry(entryID) {
			log.WithField("entry", entryID).Info("Download needs authentication, refreshing cookies and retrying once")
			m.retryAfterRefresh(entryID)
			return
		}
		m.clearAuthRetry(entryID)
		if err := m.queue.Fail(entryID, ev.Err); err != nil {
			log.WithError(err).Debugf("Failure for entry %s not applicable", entryID)
		}
	}
}

// retryAfterRefresh refreshes cookies and relaunches an entry off the event
// loop goroutine so pacing delays don't stall other sessions' events.
func (m *Manager) retryAfterRefresh(entryID string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := m.ext.RefreshCookies(ctx, m.opts.Browser); err != nil {
			m.failEntry(entryID, fmt.Errorf("cookie refresh failed: %w", err))
			return
		}
		e, err := m.queue.Get(entryID)
		if err != nil || e.Status != queue.StatusDownloading {
			// Cancelled or removed while the refresh ran
			return
		}
		if err := m.launch(ctx, entryID, e.Request); err != nil {
			m.failEntry(entryID, err)
		}
	}()
}

// markAuthRetry records that an entry is consuming its single
// refresh-and-retry. Returns false if it was already spent.
func (m *Manager) markAuthRetry(entryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.authRetried[entryID] {
		return false
	}
	m.authRetried[entryID] = true
	return true
}

func (m *Manager) clearAuthRetry(entryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.authRetried, entryID)
}

// failEntry marks an entry Failed, tolerating entries that already left
// Downloading.
func (m *Manager) failEntry(entryID string, cause error) {
	m.clearAuthRetry(entryID)
	if err := m.queue.Fail(entryID, cause); err != nil {
		log.WithError(err).Debugf("Could not fail entry %s", entryID)
	}
}

// recordCompletion writes the history record for a finished download.
// History failures are logged, never surfaced as download failures.
func (m *Manager) recordCompletion(snap queue.Entry, filePath string) {
	rec := models.RecentDownload{
		ID:          snap.ID,
		Title:       snap.Title,
		URL:         snap.Request.URL,
		FilePath:    filePath,
		Quality:     snap.Quality,
		Uploader:    snap.Request.Uploader,
		DurationSec: snap.Request.DurationSec,
		CompletedAt: time.Now().Unix(),
	}

	if filePath != "" {
		if info, err := os.Stat(filePath); err == nil {
			rec.SizeBytes = info.Size()
		} else {
			log.WithError(err).Debugf("Could not stat completed file %s", filePath)
		}
		if hash, err := helpers.FileBlake3(filePath); err == nil {
			rec.Blake3 = hash
		} else {
			log.WithError(err).Debugf("Could not hash completed file %s", filePath)
		}
	}

	if m.opts.SaveThumbnails && m.opts.Thumbs != nil && snap.Request.Thumbnail != "" {
		rec.ThumbnailPath = m.fetchThumbnail(snap)
	}

	if m.db != nil && snap.Request.OutputDir != "" {
		if err := m.db.SetLastSaveDir(snap.Request.OutputDir); err != nil {
			log.WithError(err).Warn("Failed to record last save dir")
		}
	}

	if m.store != nil {
		if err := m.store.Add(rec); err != nil {
			log.WithError(err).Errorf("Failed to record completed download %s in history", snap.ID)
		}
	}
}

// fetchThumbnail pulls the thumbnail next to the media, shaped like a
// browser request. Best-effort.
func (m *Manager) fetchThumbnail(snap queue.Entry) string {
	identity := m.policy.SelectIdentity()
	base := helpers.ConvertToSlug(snap.Title)
	if base == "" {
		base = snap.ID
	}
	target := filepath.Join(snap.Request.OutputDir, ".thumbnails", base)
	path, err := m.opts.Thumbs.DownloadFile(target, snap.Request.Thumbnail, avoidance.Headers(identity))
	if err != nil {
		log.WithError(err).Warnf("Failed to fetch thumbnail for %s", snap.ID)
		return ""
	}
	return path
}

// --- History passthroughs ---

// ListRecent returns the history most-recent-first.
func (m *Manager) ListRecent() []models.RecentDownload {
	return m.store.List()
}

// SearchRecent is the substring search over title and URL.
func (m *Manager) SearchRecent(query string) []models.RecentDownload {
	return m.store.Search(query)
}

// SearchRecentIndexed runs a bleve query over the history.
func (m *Manager) SearchRecentIndexed(query string) ([]models.RecentDownload, error) {
	return m.store.SearchIndexed(query)
}

// RemoveRecent deletes a history record. With purgeFiles set it also removes
// the media file, its thumbnail, and sibling subtitle files.
func (m *Manager) RemoveRecent(id string, purgeFiles bool) error {
	rec, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if purgeFiles {
		purgeDownloadFiles(rec)
	}
	return m.store.Remove(id)
}

// ClearRecent empties the history.
func (m *Manager) ClearRecent() error {
	return m.store.Clear()
}

// DefaultSaveDir returns the remembered save directory, falling back to the
// configured SavePath.
func (m *Manager) DefaultSaveDir() string {
	if m.db != nil {
		if dir, err := m.db.GetLastSaveDir(); err == nil && dir != "" {
			return dir
		}
	}
	return m.opts.SavePath
}

// purgeDownloadFiles removes the media file plus its thumbnail and any
// subtitle files sharing its base name (video.srt, video.en.srt, ...).
func purgeDownloadFiles(rec models.RecentDownload) {
	removeIfPresent := func(path string) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("Failed to remove %s", path)
		}
	}

	if rec.FilePath != "" {
		removeIfPresent(rec.FilePath)

		dir := filepath.Dir(rec.FilePath)
		base := strings.TrimSuffix(filepath.Base(rec.FilePath), filepath.Ext(rec.FilePath))
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				name := entry.Name()
				ext := strings.ToLower(filepath.Ext(name))
				if ext != ".srt" && ext != ".vtt" && ext != ".ass" {
					continue
				}
				if strings.HasPrefix(name, base+".") {
					removeIfPresent(filepath.Join(dir, name))
				}
			}
		}
	}

	if rec.ThumbnailPath != "" {
		removeIfPresent(rec.ThumbnailPath)
	}
}
