package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-tube-download/internal/extractor"
	"go-tube-download/internal/helpers"
)

var probeCmd = &cobra.Command{
	Use:   "probe [URL]",
	Short: "Show metadata for a video without downloading it",
	Long: `Runs yt-dlp in metadata-only mode against the URL and prints the title,
duration, uploader and the available formats.`,
	Args: cobra.ExactArgs(1),
	Run:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Bool("formats", false, "List every available format")
}

func runProbe(cmd *cobra.Command, args []string) {
	rawURL := args[0]
	if err := extractor.ValidateURL(rawURL); err != nil {
		log.Fatalf("Invalid URL %q: %v", rawURL, err)
	}
	showFormats, _ := cmd.Flags().GetBool("formats")

	app, err := openApp(false)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer app.Close()

	info, err := app.Manager.Probe(context.Background(), rawURL)
	if err != nil {
		log.WithError(err).Fatalf("Failed to probe %s", rawURL)
	}

	fmt.Printf("Title:     %s\n", info.Title)
	fmt.Printf("Uploader:  %s\n", info.Uploader)
	fmt.Printf("Duration:  %s\n", (time.Duration(info.Duration) * time.Second).String())
	if info.Description != "" {
		fmt.Printf("About:     %s\n", firstLineEllipsized(info.Description, 120))
	}
	if info.FilesizeHD > 0 {
		fmt.Printf("Approx:    %s\n", helpers.BytesToSize(uint64(info.FilesizeHD)))
	}
	if len(info.Subtitles) > 0 {
		fmt.Printf("Subtitles: ")
		for i, sub := range info.Subtitles {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(sub.Lang)
		}
		fmt.Println()
	}

	if showFormats {
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Format ID\tExt\tResolution\tFPS\tVcodec\tAcodec\tSize")
		fmt.Fprintln(tw, "---------\t---\t----------\t---\t------\t------\t----")
		for _, f := range info.Formats {
			size := ""
			if f.Filesize > 0 {
				size = helpers.BytesToSize(uint64(f.Filesize))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%s\t%s\t%s\n",
				f.FormatID, f.Ext, f.Resolution, f.Fps, f.Vcodec, f.Acodec, size)
		}
		if err := tw.Flush(); err != nil {
			log.WithError(err).Error("Error flushing format table")
		}
	}
}

// firstLineEllipsized reduces a multi-line description to one line of at most
// max runes for the summary table.
func firstLineEllipsized(s string, max int) string {
	line := strings.TrimSpace(s)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if runes := []rune(line); len(runes) > max {
		line = string(runes[:max]) + "..."
	}
	return line
}
