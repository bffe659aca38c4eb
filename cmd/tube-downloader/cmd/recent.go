package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-tube-download/index"
	"go-tube-download/internal/helpers"
	"go-tube-download/internal/models"
)

// recentCmd represents the base command for history operations
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Interact with the recent-downloads history",
	Long:  `List, search, and manage the records of completed downloads.`,
	// No Run function for the base recent command itself
}

var recentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent downloads, newest first",
	Run:   runRecentList,
}

var recentSearchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search recent downloads by title or URL",
	Long: `Searches the history for records whose title or URL contains the query
text (case-insensitive). With --index the query runs through the full-text
index instead, which supports the bleve query string syntax.`,
	Args: cobra.ExactArgs(1),
	Run:  runRecentSearch,
}

var recentRemoveCmd = &cobra.Command{
	Use:   "remove [ID]",
	Short: "Remove a record from the history",
	Long: `Removes the history record with the given ID. With --purge the downloaded
file, its subtitles and its thumbnail are deleted from disk as well.`,
	Args: cobra.ExactArgs(1),
	Run:  runRecentRemove,
}

var recentClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every record from the history",
	Run:   runRecentClear,
}

var recentReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text index from the history records",
	Long: `Deletes the bleve index on disk and rebuilds it from the stored history
records. Use this when the index is corrupted or out of step with the history.`,
	Run: runRecentReindex,
}

func init() {
	rootCmd.AddCommand(recentCmd)
	recentCmd.AddCommand(recentListCmd)
	recentCmd.AddCommand(recentSearchCmd)
	recentCmd.AddCommand(recentRemoveCmd)
	recentCmd.AddCommand(recentClearCmd)
	recentCmd.AddCommand(recentReindexCmd)

	recentSearchCmd.Flags().Bool("index", false, "Use the full-text index instead of substring matching")
	recentRemoveCmd.Flags().Bool("purge", false, "Also delete the downloaded files from disk")
	recentClearCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}

func runRecentList(cmd *cobra.Command, args []string) {
	app, err := openApp(false)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer app.Close()

	printRecentTable(app.Manager.ListRecent())
}

func runRecentSearch(cmd *cobra.Command, args []string) {
	query := args[0]
	useIndex, _ := cmd.Flags().GetBool("index")

	app, err := openApp(useIndex)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer app.Close()

	var hits []models.RecentDownload
	if useIndex {
		hits, err = app.Manager.SearchRecentIndexed(query)
		if err != nil {
			log.WithError(err).Fatal("Index search failed")
		}
	} else {
		hits = app.Manager.SearchRecent(query)
	}

	printRecentTable(hits)
	log.Infof("Found %d matching record(s) for query '%s'.", len(hits), query)
}

func runRecentRemove(cmd *cobra.Command, args []string) {
	id := args[0]
	purge, _ := cmd.Flags().GetBool("purge")

	app, err := openApp(true)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer app.Close()

	if err := app.Manager.RemoveRecent(id, purge); err != nil {
		log.WithError(err).Fatalf("Failed to remove record %s", id)
	}
	if purge {
		log.Infof("Removed record %s and its files.", id)
	} else {
		log.Infof("Removed record %s.", id)
	}
}

func runRecentClear(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Print("Clear the entire download history? (y/N): ")
		var input string
		_, _ = fmt.Scanln(&input)
		if input != "y" && input != "Y" {
			log.Info("Aborted.")
			return
		}
	}

	app, err := openApp(true)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer app.Close()

	if err := app.Manager.ClearRecent(); err != nil {
		log.WithError(err).Fatal("Failed to clear history")
	}
	log.Info("History cleared.")
}

func runRecentReindex(cmd *cobra.Command, args []string) {
	// The index is recreated from scratch, so open everything but the index
	app, err := openApp(false)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer app.Close()

	if err := index.DeleteIndex(globalConfig.BleveIndexPath); err != nil {
		log.WithError(err).Fatalf("Failed to delete index at %s", globalConfig.BleveIndexPath)
	}
	idx, err := index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to create a fresh index")
	}
	app.Index = idx

	if err := app.Store.Reindex(idx); err != nil {
		log.WithError(err).Fatal("Failed to rebuild the index")
	}
	log.Infof("Rebuilt the search index with %d record(s).", app.Store.Len())
}

func printRecentTable(records []models.RecentDownload) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTitle\tQuality\tSize\tCompleted\tPath")
	fmt.Fprintln(tw, "--\t-----\t-------\t----\t---------\t----")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.Title,
			rec.Quality,
			sizeOrDash(rec.SizeBytes),
			time.Unix(rec.CompletedAt, 0).Format("2006-01-02 15:04"),
			rec.FilePath,
		)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing history table")
	}
}

func sizeOrDash(n int64) string {
	if n <= 0 {
		return "-"
	}
	return helpers.BytesToSize(uint64(n))
}
