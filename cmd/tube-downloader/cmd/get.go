package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-tube-download/internal/extractor"
	"go-tube-download/internal/helpers"
	"go-tube-download/internal/models"
	"go-tube-download/internal/queue"
)

var getCmd = &cobra.Command{
	Use:   "get [URL...]",
	Short: "Download one or more videos",
	Long: `Probes each URL for metadata, queues it, and downloads it through yt-dlp.
Downloads run one at a time in the order given. Ctrl-C cancels the active
download and leaves it Pending.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringP("quality", "q", "", "Preferred quality, e.g. 1080p (overrides config)")
	getCmd.Flags().StringP("output", "o", "", "Output directory (overrides remembered save dir)")
	getCmd.Flags().Bool("subs", false, "Also download subtitles (overrides config)")
	getCmd.Flags().Bool("thumbnail", false, "Save the video thumbnail next to the file (overrides config)")

	if err := viper.BindPFlag("subs", getCmd.Flags().Lookup("subs")); err != nil {
		log.WithError(err).Fatal("Failed to bind subs flag")
	}
	if err := viper.BindPFlag("thumbnail", getCmd.Flags().Lookup("thumbnail")); err != nil {
		log.WithError(err).Fatal("Failed to bind thumbnail flag")
	}
}

func runGet(cmd *cobra.Command, args []string) {
	for _, rawURL := range args {
		if err := extractor.ValidateURL(rawURL); err != nil {
			log.Fatalf("Invalid URL %q: %v", rawURL, err)
		}
	}

	quality := globalConfig.Quality
	if cmd.Flags().Changed("quality") {
		quality, _ = cmd.Flags().GetString("quality")
	}
	writeSubs := globalConfig.WriteSubs
	if cmd.Flags().Changed("subs") {
		writeSubs = viper.GetBool("subs")
	}
	if cmd.Flags().Changed("thumbnail") {
		globalConfig.SaveThumbnail = viper.GetBool("thumbnail")
	}

	app, err := openApp(true)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer app.Close()

	outputDir, _ := cmd.Flags().GetString("output")
	if outputDir == "" {
		outputDir = app.Manager.DefaultSaveDir()
	}
	if !helpers.CheckAndMakeDir(outputDir) {
		log.Fatalf("Cannot create output directory: %s", outputDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Probe and enqueue everything up front so the queue shows the full batch
	var entryIDs []string
	for _, rawURL := range args {
		info, err := app.Manager.Probe(ctx, rawURL)
		if err != nil {
			log.WithError(err).Errorf("Failed to probe %s, skipping", rawURL)
			continue
		}
		size := ""
		if info.FilesizeHD > 0 {
			size = " (" + helpers.BytesToSize(uint64(info.FilesizeHD)) + ")"
		}
		log.Infof("Queued: %s%s", info.Title, size)

		id := app.Manager.Enqueue(models.DownloadRequest{
			URL:         rawURL,
			Title:       info.Title,
			Quality:     quality,
			OutputDir:   outputDir,
			WriteSubs:   writeSubs,
			Thumbnail:   info.Thumbnail,
			Uploader:    info.Uploader,
			DurationSec: int64(info.Duration),
		})
		entryIDs = append(entryIDs, id)
	}

	if len(entryIDs) == 0 {
		log.Fatal("Nothing to download.")
	}

	var completed, failed int
	for _, id := range entryIDs {
		if ctx.Err() != nil {
			break
		}
		final, err := runOneDownload(ctx, app, id)
		if err != nil {
			log.WithError(err).Errorf("Download %s failed to start", id)
			failed++
			continue
		}
		switch final {
		case queue.StatusCompleted:
			completed++
		case queue.StatusFailed:
			failed++
		}
	}

	log.Infof("Done. Completed: %d, Failed: %d", completed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// runOneDownload starts an entry and renders its progress until it reaches a
// terminal state. On interrupt the entry is cancelled and left Pending.
func runOneDownload(ctx context.Context, app *appContext, entryID string) (queue.Status, error) {
	if err := app.Manager.Start(ctx, entryID); err != nil {
		return "", err
	}

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := app.Manager.Cancel(entryID); err != nil {
				log.WithError(err).Warnf("Failed to cancel entry %s", entryID)
			}
			fmt.Fprintln(writer, "Cancelled.")
			return queue.StatusPending, nil

		case <-ticker.C:
			e, err := app.Manager.GetEntry(entryID)
			if err != nil {
				return "", err
			}
			switch e.Status {
			case queue.StatusDownloading:
				line := fmt.Sprintf("%s: %.1f%%", e.Title, e.Progress)
				if e.Speed != "" {
					line += " at " + e.Speed
				}
				if e.ETA != "" {
					line += " ETA " + e.ETA
				}
				fmt.Fprintln(writer, line)
			case queue.StatusCompleted:
				fmt.Fprintf(writer, "%s: done\n", e.Title)
				return e.Status, nil
			case queue.StatusFailed:
				fmt.Fprintf(writer, "%s: failed (%s)\n", e.Title, e.Error)
				// The queue stores causes as strings
				if strings.Contains(e.Error, extractor.ErrToolMissing.Error()) {
					log.Error("yt-dlp was not found on PATH. Install it or set ExtractorPath in the config.")
				}
				return e.Status, nil
			}
		}
	}
}
