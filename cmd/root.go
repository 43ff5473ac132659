// Package cmd is the video-agent command line.
package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"video-agent/config"
	"video-agent/logging"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "video-agent",
	Short: "Generate and publish short-form videos from a topic",
	Long: `video-agent turns a topic into a narrated, captioned short video:
script, voice-over, transcript, images, image-to-video clips, assembly,
storage upload and YouTube publishing, with progress kept in a status ledger.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is for local runs; CI injects the environment directly
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if verbose {
			loaded.Log.Level = "debug"
			loaded.Render.Verbose = true
		}
		logging.Configure(logging.Config{
			Level:   loaded.Log.Level,
			Format:  loaded.Log.Format,
			Service: "video-agent",
		})
		cfg = loaded
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and ffmpeg output")
}
