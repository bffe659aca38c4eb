package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolP("thumbnails", "t", false, "Also remove thumbnails no history record references")
	cleanCmd.Flags().Bool("dry-run", false, "List what would be removed without removing anything")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove partial download leftovers from the save directory",
	Long: `Recursively scans the configured SavePath and removes the temporary files
yt-dlp leaves behind after interrupted downloads (*.part, *.ytdl, *.tmp).`,
	Run: runClean,
}

func runClean(cmd *cobra.Command, args []string) {
	savePath := globalConfig.SavePath

	cleanThumbnails, _ := cmd.Flags().GetBool("thumbnails")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if savePath == "" {
		log.Error("SavePath is not configured. Cannot determine where to clean.")
		os.Exit(1)
	}
	info, err := os.Stat(savePath)
	if os.IsNotExist(err) {
		log.Errorf("SavePath directory does not exist: %s", savePath)
		os.Exit(1)
	}
	if err != nil {
		log.Errorf("Error accessing SavePath %q: %v", savePath, err)
		os.Exit(1)
	}
	if !info.IsDir() {
		log.Errorf("SavePath is not a directory: %s", savePath)
		os.Exit(1)
	}

	// Orphan detection needs the history: a thumbnail is orphaned when no
	// record references it anymore
	referencedThumbs := make(map[string]bool)
	if cleanThumbnails {
		app, err := openApp(false)
		if err != nil {
			log.WithError(err).Fatal("Failed to open history for thumbnail cleanup")
		}
		for _, rec := range app.Manager.ListRecent() {
			if rec.ThumbnailPath != "" {
				referencedThumbs[rec.ThumbnailPath] = true
			}
		}
		app.Close()
	}

	logLine := fmt.Sprintf("Scanning for partial files in %s", savePath)
	if cleanThumbnails {
		logLine += " (and orphaned thumbnails)"
	}
	log.Info(logLine + "...")

	var partRemoved, ytdlRemoved, tmpRemoved, thumbRemoved int64
	var filesFailed int64

	walkErr := filepath.Walk(savePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("Error accessing path %q during scan: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil // Skip directories
		}

		lowerName := strings.ToLower(info.Name())
		shouldRemove := false
		fileType := ""

		if strings.HasSuffix(lowerName, ".part") || strings.Contains(lowerName, ".part-frag") {
			shouldRemove = true
			fileType = ".part"
		} else if strings.HasSuffix(lowerName, ".ytdl") {
			shouldRemove = true
			fileType = ".ytdl"
		} else if strings.HasSuffix(lowerName, ".tmp") {
			shouldRemove = true
			fileType = ".tmp"
		} else if cleanThumbnails && filepath.Base(filepath.Dir(path)) == ".thumbnails" {
			if !referencedThumbs[path] {
				shouldRemove = true
				fileType = "thumbnail"
			}
		}

		if shouldRemove {
			if dryRun {
				log.Infof("Would remove %s file: %s", fileType, path)
				return nil
			}
			err := os.Remove(path)
			if err != nil {
				if os.IsNotExist(err) {
					log.Warnf("Attempted to remove %s file %q, but it was already gone.", fileType, path)
				} else {
					log.Errorf("Failed to remove %s file %q: %v", fileType, path, err)
					filesFailed++
				}
			} else {
				log.Infof("Removed %s file: %s", fileType, path)
				switch fileType {
				case ".part":
					partRemoved++
				case ".ytdl":
					ytdlRemoved++
				case ".tmp":
					tmpRemoved++
				case "thumbnail":
					thumbRemoved++
				}
			}
		}
		return nil // Continue walking
	})

	if walkErr != nil {
		log.Errorf("Error during directory walk of %q: %v", savePath, walkErr)
	}

	// Build summary string
	var summaryParts []string
	if partRemoved > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d .part file(s)", partRemoved))
	}
	if ytdlRemoved > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d .ytdl file(s)", ytdlRemoved))
	}
	if tmpRemoved > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d .tmp file(s)", tmpRemoved))
	}
	if thumbRemoved > 0 {
		summaryParts = append(summaryParts, fmt.Sprintf("%d thumbnail(s)", thumbRemoved))
	}

	summary := "Clean complete. Removed: "
	if len(summaryParts) > 0 {
		summary += strings.Join(summaryParts, ", ")
	} else {
		summary += "0 files"
	}

	if filesFailed > 0 {
		summary += fmt.Sprintf(". Failed to remove %d file(s).", filesFailed)
	}
	log.Info(summary)

	if filesFailed > 0 || walkErr != nil {
		os.Exit(1)
	}
}
