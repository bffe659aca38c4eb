package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-tube-download/internal/api"
	"go-tube-download/internal/config"
	"go-tube-download/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logHttpFlag holds the value of the --log-http flag
var logHttpFlag bool

// savePathFlag holds the value of the --save-path flag
var savePathFlag string

// logLevelFlag holds the value of the --log-level flag
var logLevelFlag string

// logFormatFlag holds the value of the --log-format flag
var logFormatFlag string

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tube-downloader",
	Short: "A tool to download videos with yt-dlp",
	Long: `Tube Downloader fetches videos through yt-dlp, keeps a history of
completed downloads, and manages the cookies the extractor needs.`,
	PersistentPreRunE: loadGlobalConfig, // Load config before any command runs
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Defer closing the HTTP logging transport if it was initialized
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing HTTP log file")
			}
		}
	}()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Add persistent flags that apply to all commands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logHttpFlag, "log-http", false, "Log HTTP requests/responses to http.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save videos (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: text or json")
}

// loadGlobalConfig attempts to load the configuration and applies flag overrides.
// It also sets up the global HTTP transport based on logging settings.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("log-level") {
		level, err := log.ParseLevel(logLevelFlag)
		if err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", logLevelFlag, err)
		}
		log.SetLevel(level)
	}
	if cmd.Flags().Changed("log-format") {
		switch logFormatFlag {
		case "json":
			log.SetFormatter(&log.JSONFormatter{})
		case "text", "":
			log.SetFormatter(&log.TextFormatter{})
		default:
			return fmt.Errorf("invalid --log-format %q: want text or json", logFormatFlag)
		}
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Not fatal: every field has a usable default, commands that need a
		// specific path will complain themselves.
		log.WithError(err).Warnf("Failed to load configuration from %s, using defaults", cfgFile)
		globalConfig = config.Defaults()
	}

	// Override LogHttpRequests if flag was used
	if cmd.Flags().Changed("log-http") {
		globalConfig.LogHttpRequests = logHttpFlag
		log.Debugf("Overriding LogHttpRequests based on --log-http flag: %t", logHttpFlag)
	}

	// Override SavePath if flag was used
	if cmd.Flags().Changed("save-path") {
		if savePathFlag != "" {
			globalConfig.SavePath = savePathFlag
			log.Debugf("Overriding SavePath based on --save-path flag: %s", savePathFlag)
		} else {
			log.Warn("--save-path flag provided but value is empty, ignoring.")
		}
	}

	applyPathDefaults(&globalConfig)

	// --- Setup Global HTTP Transport ---
	baseTransport := http.DefaultTransport
	globalHttpTransport = baseTransport
	if globalConfig.LogHttpRequests {
		log.Debug("HTTP request logging enabled, wrapping global HTTP transport.")
		logFilePath := "http.log"
		if globalConfig.DataDir != "" {
			if _, statErr := os.Stat(globalConfig.DataDir); statErr == nil {
				logFilePath = filepath.Join(globalConfig.DataDir, logFilePath)
			}
		}
		log.Infof("HTTP logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize HTTP logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}

	return nil
}

// applyPathDefaults fills the path-shaped config fields relative to DataDir
// so a bare config still yields a working layout under ~/.tube-downloader.
func applyPathDefaults(cfg *models.Config) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			cfg.DataDir = ".tube-downloader"
		} else {
			cfg.DataDir = filepath.Join(home, ".tube-downloader")
		}
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "db")
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = filepath.Join(cfg.DataDir, "recent.bleve")
	}
	if cfg.SavePath == "" {
		cfg.SavePath = "."
	}
}
