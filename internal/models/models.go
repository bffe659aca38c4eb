package models

type (
	Config struct {
		// Paths
		SavePath       string `toml:"SavePath"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`
		DataDir        string `toml:"DataDir"` // Credentials and cookie jar live here

		// Extractor
		ExtractorPath string `toml:"ExtractorPath"` // yt-dlp binary, discovered on PATH if empty
		FfmpegPath    string `toml:"FfmpegPath"`    // ffmpeg binary, discovered if empty
		CookieBrowser string `toml:"CookieBrowser"` // Browser to export cookies from (default "chrome")

		// Download behaviour
		Quality       string `toml:"Quality"`       // Preferred quality label, e.g. "1080p"
		WriteSubs     bool   `toml:"WriteSubs"`     // Also fetch English subtitles
		SubLangs      string `toml:"SubLangs"`      // Subtitle languages (default "en")
		MaxRecent     int    `toml:"MaxRecent"`     // Recent-downloads cap (default 100)
		SaveThumbnail bool   `toml:"SaveThumbnail"` // Fetch thumbnail for completed downloads

		// Request shaping
		RateLimitRequests int `toml:"RateLimitRequests"` // Requests allowed per window (default 3)
		RateLimitWindowMs int `toml:"RateLimitWindowMs"` // Sliding window in ms (default 60000)
		JitterMinMs       int `toml:"JitterMinMs"`       // Pre-request delay lower bound (default 1000)
		JitterMaxMs       int `toml:"JitterMaxMs"`       // Pre-request delay upper bound (default 3000)

		// Other
		LogHttpRequests bool `toml:"LogHttpRequests"`
	}

	// VideoInfo is the probe result for a single video URL.
	VideoInfo struct {
		ID          string     `json:"id"`
		Title       string     `json:"title"`
		URL         string     `json:"webpage_url"`
		Description string     `json:"description"`
		Duration    float64    `json:"duration"`
		Thumbnail   string     `json:"thumbnail"`
		Uploader    string     `json:"uploader"`
		Formats     []Format   `json:"formats"`
		Subtitles   []Subtitle `json:"-"`
		FilesizeHD  int64      `json:"filesize_approx"`
	}

	// Format is a single downloadable stream variant.
	Format struct {
		FormatID   string  `json:"format_id"`
		Ext        string  `json:"ext"`
		Resolution string  `json:"resolution"`
		Height     int     `json:"height"`
		Fps        float64 `json:"fps"`
		Vcodec     string  `json:"vcodec"`
		Acodec     string  `json:"acodec"`
		Filesize   int64   `json:"filesize"`
		Note       string  `json:"format_note"`
	}

	// Subtitle describes one available subtitle track.
	Subtitle struct {
		Lang string `json:"lang"`
		Ext  string `json:"ext"`
		URL  string `json:"url"`
	}

	// DownloadRequest carries everything needed to start one download.
	// Thumbnail, Uploader and DurationSec are metadata captured at probe
	// time and carried through to the history record.
	DownloadRequest struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Quality     string `json:"quality"`
		OutputDir   string `json:"outputDir"`
		WriteSubs   bool   `json:"writeSubs"`
		Thumbnail   string `json:"thumbnail,omitempty"`
		Uploader    string `json:"uploader,omitempty"`
		DurationSec int64  `json:"durationSec,omitempty"`
	}

	// RecentDownload is one completed-download record in the history store.
	RecentDownload struct {
		ID            string `json:"id"`
		Title         string `json:"title"`
		URL           string `json:"url"`
		FilePath      string `json:"filePath"`
		ThumbnailPath string `json:"thumbnailPath,omitempty"`
		Quality       string `json:"quality,omitempty"`
		Uploader      string `json:"uploader,omitempty"`
		SizeBytes     int64  `json:"sizeBytes"`
		DurationSec   int64  `json:"durationSec"`
		Blake3        string `json:"blake3,omitempty"`
		CompletedAt   int64  `json:"completedAt"`
	}

	// Credentials holds the saved auth material for the single local user.
	Credentials struct {
		AccessToken  string `json:"accessToken,omitempty"`
		RefreshToken string `json:"refreshToken,omitempty"`
		Cookies      string `json:"cookies,omitempty"`
		SavedAt      int64  `json:"savedAt"`
	}

	// Cookie is a single name/value pair applied to outbound requests.
	Cookie struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
)
