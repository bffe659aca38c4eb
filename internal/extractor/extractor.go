package extractor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go-tube-download/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Custom Extractor Errors
var (
	ErrToolMissing  = errors.New("yt-dlp binary not found")
	ErrAuthRequired = errors.New("authentication required")
	ErrNotFound     = errors.New("video not found or unavailable")
	ErrNetwork      = errors.New("network error during extraction")
	ErrNotActive    = errors.New("no active session with that id")
	ErrInvalidURL   = errors.New("not a recognized video URL")
)

// EventKind discriminates the events published by an Adapter.
type EventKind int

const (
	EventProgress EventKind = iota
	EventCompleted
	EventFailed
)

// Event is a single typed update from a download session.
type Event struct {
	SessionID string
	Kind      EventKind
	Percent   float64
	Speed     string
	ETA       string
	FilePath  string
	Err       error
}

// neutralURL is downloaded with --skip-download when re-exporting cookies.
const neutralURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type session struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// Adapter drives the yt-dlp subprocess and turns its output into typed events.
type Adapter struct {
	binPath     string
	ffmpegPath  string
	cookiesPath string
	subLangs    string

	mu       sync.Mutex
	sessions map[string]*session

	events chan Event
}

// NewAdapter builds an Adapter. binPath may be empty, in which case yt-dlp is
// looked up on PATH at call time so a missing tool surfaces as ErrToolMissing
// on the operation that needed it.
func NewAdapter(binPath, ffmpegPath, cookiesPath, subLangs string) *Adapter {
	if subLangs == "" {
		subLangs = "en"
	}
	return &Adapter{
		binPath:     binPath,
		ffmpegPath:  ffmpegPath,
		cookiesPath: cookiesPath,
		subLangs:    subLangs,
		sessions:    make(map[string]*session),
		events:      make(chan Event, 64),
	}
}

// Events returns the channel all sessions publish on. A single consumer
// should drain it for the lifetime of the Adapter.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// resolveBin locates the yt-dlp binary.
func (a *Adapter) resolveBin() (string, error) {
	if a.binPath != "" {
		if _, err := os.Stat(a.binPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrToolMissing, a.binPath)
		}
		return a.binPath, nil
	}
	path, err := exec.LookPath("yt-dlp")
	if err != nil {
		return "", fmt.Errorf("%w: install it with 'pip install yt-dlp' or your package manager", ErrToolMissing)
	}
	return path, nil
}

// commonArgs returns the flags shared by probe and download invocations.
func (a *Adapter) commonArgs(userAgent string) []string {
	var args []string
	if a.cookiesPath != "" {
		if _, err := os.Stat(a.cookiesPath); err == nil {
			args = append(args, "--cookies", a.cookiesPath)
		}
	}
	if userAgent != "" {
		args = append(args, "--user-agent", userAgent)
	}
	return args
}

// Probe runs a metadata-only extraction for the given URL.
func (a *Adapter) Probe(ctx context.Context, url, userAgent string) (models.VideoInfo, error) {
	if err := ValidateURL(url); err != nil {
		return models.VideoInfo{}, err
	}
	bin, err := a.resolveBin()
	if err != nil {
		return models.VideoInfo{}, err
	}

	args := append(a.commonArgs(userAgent), "--dump-json", "--no-playlist", url)
	log.WithField("url", url).Debug("Probing video metadata")

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return models.VideoInfo{}, ctx.Err()
		}
		classified := classifyFailure(stderr.String())
		log.WithError(classified).Debugf("Probe failed for %s", url)
		return models.VideoInfo{}, classified
	}

	var info models.VideoInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return models.VideoInfo{}, fmt.Errorf("parsing probe output for %s: %w", url, err)
	}
	info.Subtitles = parseSubtitles(stdout.Bytes())
	return info, nil
}

// Download spawns a yt-dlp process for the request and returns a session id.
// Progress and the terminal outcome are delivered on the Events channel.
func (a *Adapter) Download(ctx context.Context, req models.DownloadRequest, userAgent string) (string, error) {
	if err := ValidateURL(req.URL); err != nil {
		return "", err
	}
	bin, err := a.resolveBin()
	if err != nil {
		return "", err
	}

	outputTemplate := filepath.Join(req.OutputDir, "%(title)s.%(ext)s")
	args := a.commonArgs(userAgent)
	args = append(args,
		"-f", formatSelector(req.Quality),
		"--merge-output-format", "mp4",
		"-o", outputTemplate,
		"--newline", "--progress",
		"--no-playlist",
	)
	if a.ffmpegPath != "" {
		args = append(args, "--ffmpeg-location", a.ffmpegPath)
	}
	if req.WriteSubs {
		args = append(args,
			"--write-subs",
			"--sub-langs", a.subLangs,
			"--sub-format", "srt/best",
			"--convert-subs", "srt",
		)
	}
	args = append(args, req.URL)

	sessionCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(sessionCtx, bin, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("attaching stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return "", fmt.Errorf("starting yt-dlp for %s: %w", req.URL, err)
	}

	sessionID := uuid.NewString()
	a.mu.Lock()
	a.sessions[sessionID] = &session{cmd: cmd, cancel: cancel}
	a.mu.Unlock()

	log.WithField("session", sessionID).Infof("Download started for %s", req.URL)
	go a.consume(sessionID, cmd, stdoutPipe, &stderr, cancel)

	return sessionID, nil
}

// consume reads process output line by line, publishing progress events, then
// publishes exactly one terminal event when the process exits.
func (a *Adapter) consume(sessionID string, cmd *exec.Cmd, stdout io.Reader, stderr *bytes.Buffer, cancel context.CancelFunc) {
	defer cancel()

	parser := newProgressParser()
	destPath := ""

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if p := parseDestination(line); p != "" {
			destPath = p
			continue
		}
		update, ok := parser.Parse(line)
		if !ok {
			log.WithField("session", sessionID).Debugf("Ignoring line: %s", line)
			continue
		}
		a.events <- Event{
			SessionID: sessionID,
			Kind:      EventProgress,
			Percent:   update.Percent,
			Speed:     update.Speed,
			ETA:       update.ETA,
		}
	}

	err := cmd.Wait()

	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()

	if err != nil {
		classified := classifyFailure(stderr.String())
		log.WithError(classified).WithField("session", sessionID).Warn("Download process exited with error")
		a.events <- Event{SessionID: sessionID, Kind: EventFailed, Err: classified}
		return
	}

	log.WithField("session", sessionID).Infof("Download finished: %s", destPath)
	a.events <- Event{SessionID: sessionID, Kind: EventCompleted, Percent: 100, FilePath: destPath}
}

// Cancel kills the process behind a session. The terminal failure event is
// still published by the session goroutine.
func (a *Adapter) Cancel(sessionID string) error {
	a.mu.Lock()
	s, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		return ErrNotActive
	}
	log.WithField("session", sessionID).Info("Cancelling download session")
	s.cancel()
	return nil
}

// ActiveSessions reports the ids of sessions whose process is still running.
func (a *Adapter) ActiveSessions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.sessions))
	for id := range a.sessions {
		ids = append(ids, id)
	}
	return ids
}

// RefreshCookies re-exports the cookie jar from the configured browser.
func (a *Adapter) RefreshCookies(ctx context.Context, browser string) error {
	bin, err := a.resolveBin()
	if err != nil {
		return err
	}
	if browser == "" {
		browser = "chrome"
	}
	if a.cookiesPath == "" {
		return errors.New("no cookie jar path configured")
	}
	if dir := filepath.Dir(a.cookiesPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating cookie jar directory: %w", err)
		}
	}

	log.WithField("browser", browser).Info("Refreshing cookie jar from browser")
	cmd := exec.CommandContext(ctx, bin,
		"--cookies-from-browser", browser,
		"--cookies", a.cookiesPath,
		"--skip-download",
		neutralURL,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("cookie refresh failed: %s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// CookiesPath returns the configured cookie jar location.
func (a *Adapter) CookiesPath() string {
	return a.cookiesPath
}

// FindFfmpeg resolves the ffmpeg binary: the configured path wins, then PATH,
// then the usual install locations. Returns "" when nothing is found, in which
// case yt-dlp falls back to its own discovery.
func FindFfmpeg(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
		log.Warnf("Configured ffmpeg path %s does not exist, falling back to discovery", configured)
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path
	}
	for _, candidate := range []string{
		"/usr/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/opt/homebrew/bin/ffmpeg",
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// parseSubtitles pulls the subtitles map out of the raw probe document.
func parseSubtitles(raw []byte) []models.Subtitle {
	var doc struct {
		Subtitles map[string][]struct {
			Ext string `json:"ext"`
			URL string `json:"url"`
		} `json:"subtitles"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	var subs []models.Subtitle
	for lang, tracks := range doc.Subtitles {
		for _, tr := range tracks {
			subs = append(subs, models.Subtitle{Lang: lang, Ext: tr.Ext, URL: tr.URL})
		}
	}
	return subs
}
