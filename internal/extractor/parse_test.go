package extractor

import (
	"errors"
	"testing"
)

func TestProgressParser(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantOk      bool
		wantPercent float64
		wantSpeed   string
		wantETA     string
	}{
		{
			name:        "Full progress line",
			line:        "[download]  45.2% of 50.00MiB at 2.50MiB/s ETA 00:30",
			wantOk:      true,
			wantPercent: 45.2,
			wantSpeed:   "2.50MiB/s",
			wantETA:     "00:30",
		},
		{
			name:        "Integer percent",
			line:        "[download] 100% of 50.00MiB at 3.00MiB/s ETA 00:00",
			wantOk:      true,
			wantPercent: 100,
			wantSpeed:   "3.00MiB/s",
			wantETA:     "00:00",
		},
		{
			name:        "Percent only fallback",
			line:        "[download]  80.0%",
			wantOk:      true,
			wantPercent: 80,
		},
		{
			name:   "Merger line has no progress",
			line:   `[Merger] Merging formats into "/tmp/video.mp4"`,
			wantOk: false,
		},
		{
			name:   "Unrelated line",
			line:   "[youtube] dQw4w9WgXcQ: Downloading webpage",
			wantOk: false,
		},
		{
			name:   "Empty line",
			line:   "",
			wantOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProgressParser()
			got, ok := p.Parse(tt.line)
			if ok != tt.wantOk {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.line, ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if got.Percent != tt.wantPercent {
				t.Errorf("Parse(%q) percent = %v, want %v", tt.line, got.Percent, tt.wantPercent)
			}
			if got.Speed != tt.wantSpeed {
				t.Errorf("Parse(%q) speed = %q, want %q", tt.line, got.Speed, tt.wantSpeed)
			}
			if got.ETA != tt.wantETA {
				t.Errorf("Parse(%q) eta = %q, want %q", tt.line, got.ETA, tt.wantETA)
			}
		})
	}
}

func TestProgressParserHoldsHighWaterMark(t *testing.T) {
	p := newProgressParser()

	lines := []struct {
		line string
		want float64
	}{
		{"[download]  10.0% of 50.00MiB at 1.00MiB/s ETA 01:00", 10},
		{"[download]  95.0% of 50.00MiB at 1.00MiB/s ETA 00:05", 95},
		// Audio stream restarts at a low percent; display must not regress
		{"[download]   3.0% of 4.00MiB at 1.00MiB/s ETA 00:04", 95},
		{"[download] 100% of 4.00MiB at 1.00MiB/s ETA 00:00", 100},
	}
	for _, l := range lines {
		got, ok := p.Parse(l.line)
		if !ok {
			t.Fatalf("Parse(%q) unexpectedly returned ok=false", l.line)
		}
		if got.Percent != l.want {
			t.Errorf("Parse(%q) percent = %v, want %v", l.line, got.Percent, l.want)
		}
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"Download destination", "[download] Destination: /tmp/My Video.f137.mp4", "/tmp/My Video.f137.mp4"},
		{"Merger output", `[Merger] Merging formats into "/tmp/My Video.mp4"`, "/tmp/My Video.mp4"},
		{"Already downloaded", "[download] /tmp/My Video.mp4 has already been downloaded", "/tmp/My Video.mp4"},
		{"Progress line", "[download]  45.2% of 50.00MiB at 2.50MiB/s ETA 00:30", ""},
		{"Unrelated", "[youtube] extracting", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDestination(tt.line); got != tt.want {
				t.Errorf("parseDestination(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name    string
		stderr  string
		wantErr error
	}{
		{"Age gate", "ERROR: Sign in to confirm your age", ErrAuthRequired},
		{"Bot check", "ERROR: Sign in to confirm you're not a bot. Use --cookies", ErrAuthRequired},
		{"Private video", "ERROR: Private video. Sign in if you've been granted access", ErrAuthRequired},
		{"Cookies mentioned", "ERROR: The provided cookies are no longer valid", ErrAuthRequired},
		{"Unavailable", "ERROR: Video unavailable", ErrNotFound},
		{"Removed", "ERROR: This video has been removed by the uploader", ErrNotFound},
		{"Timeout", "ERROR: Unable to download webpage: timed out", ErrNetwork},
		{"DNS", "ERROR: Temporary failure in name resolution", ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyFailure(tt.stderr)
			if !errors.Is(got, tt.wantErr) {
				t.Errorf("classifyFailure(%q) = %v, want wrapped %v", tt.stderr, got, tt.wantErr)
			}
		})
	}

	// Unmatched stderr stays a plain error, not one of the sentinels
	got := classifyFailure("ERROR: some other problem")
	for _, sentinel := range []error{ErrAuthRequired, ErrNotFound, ErrNetwork} {
		if errors.Is(got, sentinel) {
			t.Errorf("classifyFailure of generic stderr should not match %v", sentinel)
		}
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=10s",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/abc123DEF45",
		"https://www.youtube.com/live/abc123DEF45",
		"http://www.youtube.com/embed/dQw4w9WgXcQ",
	}
	for _, url := range valid {
		if err := ValidateURL(url); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", url, err)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"https://example.com/watch?v=dQw4w9WgXcQ",
		"ftp://youtube.com/watch?v=x",
		"https://www.youtube.com/",
	}
	for _, url := range invalid {
		if err := ValidateURL(url); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ValidateURL(%q) = %v, want ErrInvalidURL", url, err)
		}
	}
}

func TestFormatSelector(t *testing.T) {
	tests := []struct {
		name    string
		quality string
		want    string
	}{
		{"Empty quality", "", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"},
		{"1080p", "1080p", "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080][ext=mp4]/best"},
		{"720p", "720p", "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[height<=720][ext=mp4]/best"},
		{"Unparseable", "best", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSelector(tt.quality); got != tt.want {
				t.Errorf("formatSelector(%q) = %q, want %q", tt.quality, got, tt.want)
			}
		})
	}
}
