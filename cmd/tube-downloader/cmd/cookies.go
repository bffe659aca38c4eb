package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-tube-download/internal/auth"
	"go-tube-download/internal/extractor"
	"go-tube-download/internal/models"
)

// cookiesCmd represents the base command for cookie jar operations
var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage the cookie jar yt-dlp uses for authenticated videos",
}

var cookiesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Export fresh cookies from the browser into the jar",
	Long: `Runs yt-dlp with --cookies-from-browser to export the browser's current
session cookies into the jar. The browser must be installed and have an
active session on the video site.`,
	Run: runCookiesRefresh,
}

var cookiesPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the cookie jar location and whether it exists",
	Run:   runCookiesPath,
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved cookies and credentials",
	Run:   runCookiesClear,
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesRefreshCmd)
	cookiesCmd.AddCommand(cookiesPathCmd)
	cookiesCmd.AddCommand(cookiesClearCmd)

	cookiesRefreshCmd.Flags().String("browser", "", "Browser to export cookies from (overrides config)")
}

func runCookiesRefresh(cmd *cobra.Command, args []string) {
	browser := globalConfig.CookieBrowser
	if cmd.Flags().Changed("browser") {
		browser, _ = cmd.Flags().GetString("browser")
	}

	authMgr, err := auth.NewManager(globalConfig.DataDir)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize data directory")
	}

	adapter := extractor.NewAdapter(
		globalConfig.ExtractorPath,
		globalConfig.FfmpegPath,
		authMgr.CookiesPath(),
		globalConfig.SubLangs,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log.Infof("Refreshing cookies from %s...", browser)
	if err := adapter.RefreshCookies(ctx, browser); err != nil {
		log.WithError(err).Fatalf("Cookie refresh from %s failed", browser)
	}

	// Record when and from where the jar was last refreshed
	if err := authMgr.Save(models.Credentials{Cookies: browser}); err != nil {
		log.WithError(err).Warn("Failed to record refresh time")
	}
	log.Infof("Cookie jar updated: %s", authMgr.CookiesPath())
}

func runCookiesPath(cmd *cobra.Command, args []string) {
	authMgr, err := auth.NewManager(globalConfig.DataDir)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize data directory")
	}

	fmt.Println(authMgr.CookiesPath())
	if authMgr.HasCookies() {
		log.Info("Cookie jar exists.")
		if creds, err := authMgr.Load(); err == nil && creds.SavedAt > 0 {
			log.Infof("Last refreshed %s from %s.",
				time.Unix(creds.SavedAt, 0).Format("2006-01-02 15:04"), creds.Cookies)
		}
	} else {
		log.Info("Cookie jar does not exist yet. Run 'cookies refresh' to create it.")
	}
}

func runCookiesClear(cmd *cobra.Command, args []string) {
	authMgr, err := auth.NewManager(globalConfig.DataDir)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize data directory")
	}

	if err := authMgr.Clear(); err != nil {
		log.WithError(err).Fatal("Failed to clear saved credentials")
	}
	log.Info("Saved cookies and credentials removed.")
}
