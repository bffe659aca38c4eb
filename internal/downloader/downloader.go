package downloader

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go-tube-download/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error")
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
)

// Downloader fetches auxiliary files (thumbnails) over plain HTTP with the
// request-shaping headers applied.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	return &Downloader{client: client}
}

// DownloadFile fetches url into targetFilepath, writing through a temp file
// and renaming on success. If targetFilepath has no extension, one is derived
// from the response Content-Type. Returns the final path written.
func (d *Downloader) DownloadFile(targetFilepath, url string, headers map[string]string) (string, error) {
	targetDir := filepath.Dir(targetFilepath)
	if !helpers.CheckAndMakeDir(targetDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, targetDir)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating request for %s: %v", ErrHttpRequest, url, err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, url)
	}

	finalFilepath := targetFilepath
	if filepath.Ext(finalFilepath) == "" {
		if ext := extensionFromContentType(resp.Header.Get("Content-Type")); ext != "" {
			finalFilepath += ext
		}
	}

	tempFile, err := os.CreateTemp(targetDir, filepath.Base(finalFilepath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file in %s: %v", ErrFileSystem, targetDir, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	counter := &helpers.CounterWriter{Writer: tempFile}
	if _, err = io.Copy(counter, resp.Body); err != nil {
		_ = tempFile.Close()
		return "", fmt.Errorf("%w: writing temporary file %s: %v", ErrFileSystem, tempFile.Name(), err)
	}

	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("%w: closing temp file %s: %v", ErrFileSystem, tempFile.Name(), err)
	}

	if err = os.Rename(tempFile.Name(), finalFilepath); err != nil {
		return "", fmt.Errorf("%w: renaming %s to %s: %v", ErrFileSystem, tempFile.Name(), finalFilepath, err)
	}
	shouldCleanupTemp = false

	log.Debugf("Fetched %s (%s) to %s", url, helpers.BytesToSize(counter.Total), finalFilepath)
	return finalFilepath, nil
}

// extensionFromContentType maps a Content-Type to a file extension,
// preferring the common image types thumbnails arrive as.
func extensionFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
