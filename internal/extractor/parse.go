package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Full progress line: "[download]  45.2% of 50.00MiB at 2.50MiB/s ETA 00:30"
	progressRe = regexp.MustCompile(`(\d+\.?\d*)%.*?at\s+(\S+).*?ETA\s+(\S+)`)
	// Fallback for lines carrying only a percentage.
	percentRe = regexp.MustCompile(`(\d+\.?\d*)%`)

	destinationRe = regexp.MustCompile(`\[download\] Destination:\s+(.+)`)
	mergerRe      = regexp.MustCompile(`\[Merger\] Merging formats into "(.+)"`)
	alreadyRe     = regexp.MustCompile(`\[download\]\s+(.+) has already been downloaded`)

	urlRe = regexp.MustCompile(`^https?://(www\.|m\.|music\.)?(youtube\.com/(watch\?|shorts/|live/|embed/)|youtu\.be/)\S+`)
)

// authPatterns mark stderr output that means the session needs fresh
// credentials rather than having hit a generic failure. Matched lowercased.
var authPatterns = []string{
	"sign in to confirm your age",
	"sign in to confirm you're not a bot",
	"sign in to confirm you’re not a bot",
	"private video",
	"members-only",
	"join this channel",
	"authentication",
	"login required",
	"cookies",
	"sign in",
	"log in",
}

var notFoundPatterns = []string{
	"video unavailable",
	"this video is not available",
	"has been removed",
	"404",
	"does not exist",
}

var networkPatterns = []string{
	"unable to download webpage",
	"connection reset",
	"connection refused",
	"timed out",
	"temporary failure in name resolution",
	"network is unreachable",
}

// ProgressUpdate is one parsed progress line.
type ProgressUpdate struct {
	Percent float64
	Speed   string
	ETA     string
}

// progressParser keeps per-session parse state so the merge phase (which
// reports no percentages) never regresses the last known percent.
type progressParser struct {
	lastPercent float64
}

func newProgressParser() *progressParser {
	return &progressParser{}
}

// Parse extracts a progress update from one stdout line. The second return
// value is false for lines that carry no progress information.
func (p *progressParser) Parse(line string) (ProgressUpdate, bool) {
	if m := progressRe.FindStringSubmatch(line); m != nil {
		percent, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return ProgressUpdate{}, false
		}
		percent = p.clamp(percent)
		return ProgressUpdate{Percent: percent, Speed: m[2], ETA: m[3]}, true
	}
	if m := percentRe.FindStringSubmatch(line); m != nil {
		percent, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return ProgressUpdate{}, false
		}
		return ProgressUpdate{Percent: p.clamp(percent)}, true
	}
	return ProgressUpdate{}, false
}

// clamp bounds the percent to [0,100] and holds the high-water mark.
func (p *progressParser) clamp(percent float64) float64 {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent < p.lastPercent {
		return p.lastPercent
	}
	p.lastPercent = percent
	return percent
}

// parseDestination recognizes the lines naming the output file.
func parseDestination(line string) string {
	if m := mergerRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := destinationRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := alreadyRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// classifyFailure maps process stderr to one of the extractor's sentinel
// errors. Auth patterns are checked first since several of them overlap the
// generic ones.
func classifyFailure(stderr string) error {
	lower := strings.ToLower(stderr)

	for _, pattern := range authPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: %s", ErrAuthRequired, firstLine(stderr))
		}
	}
	for _, pattern := range notFoundPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: %s", ErrNotFound, firstLine(stderr))
		}
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: %s", ErrNetwork, firstLine(stderr))
		}
	}
	if strings.TrimSpace(stderr) == "" {
		return fmt.Errorf("yt-dlp exited abnormally")
	}
	return fmt.Errorf("yt-dlp failed: %s", firstLine(stderr))
}

// firstLine returns the first non-empty line of output, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return strings.TrimSpace(s)
}

// ValidateURL rejects anything that is not a recognizable video URL before a
// subprocess is ever spawned for it.
func ValidateURL(url string) error {
	if !urlRe.MatchString(strings.TrimSpace(url)) {
		return fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	return nil
}

// formatSelector builds the yt-dlp -f expression for a quality label such as
// "1080p". An empty quality selects the best available mp4 combination.
func formatSelector(quality string) string {
	height := 0
	if q := strings.TrimSuffix(strings.ToLower(quality), "p"); q != strings.ToLower(quality) {
		if h, err := strconv.Atoi(q); err == nil {
			height = h
		}
	}
	if height > 0 {
		return fmt.Sprintf(
			"bestvideo[height<=%d][ext=mp4]+bestaudio[ext=m4a]/best[height<=%d][ext=mp4]/best",
			height, height)
	}
	return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
}
