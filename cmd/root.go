package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/docprep/internal/backend"
	"github.com/lehigh-university-libraries/docprep/internal/storage"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "docprep",
		Short: "Batch PDF conversion tool backed by remote Marker servers",
		Long: `Docprep converts PDF documents to markdown, JSON or HTML by driving
remote Marker conversion backends: the Datalab cloud API or a
self-hosted marker server.

Files are submitted concurrently, polled until complete and packaged
into a zip archive together with a per-file result manifest.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			logLevel := slog.LevelInfo
			if verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newConvertCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func configFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "docprep", "config.json"), nil
}

func openConfigStore() (*storage.ConfigStore, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, err
	}
	return storage.OpenConfig(path)
}

// resolveCredentials layers credential sources: flags beat environment
// variables, which beat the persisted config store.
func resolveCredentials(apiKey, geminiKey string) backend.Credentials {
	creds := backend.Credentials{APIKey: apiKey, GeminiKey: geminiKey}
	if creds.APIKey == "" {
		creds.APIKey = os.Getenv("DATALAB_API_KEY")
	}
	if creds.GeminiKey == "" {
		creds.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if creds.APIKey != "" && creds.GeminiKey != "" {
		return creds
	}

	store, err := openConfigStore()
	if err != nil {
		slog.Debug("Config store unavailable", "error", err)
		return creds
	}
	if creds.APIKey == "" {
		creds.APIKey, _ = store.Get("api_key")
	}
	if creds.GeminiKey == "" {
		creds.GeminiKey, _ = store.Get("gemini_key")
	}
	return creds
}

func configDefault(store *storage.ConfigStore, key, fallback string) string {
	if store == nil {
		return fallback
	}
	if v, ok := store.Get(key); ok && v != "" {
		return v
	}
	return fallback
}
