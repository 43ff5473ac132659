package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"video-agent/logging"
	"video-agent/pipeline"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Run the pipeline once and print the published URL",
	Long: `Create runs every stage for one topic. Pass --topic directly, or
--subreddit to pick the best unused post from Reddit as the topic.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var (
	topic     string
	format    string
	duration  int
	subreddit string
	useReddit bool
)

func init() {
	createCmd.Flags().StringVarP(&topic, "topic", "t", "", "video topic")
	createCmd.Flags().StringVarP(&format, "format", "f", "", "script format, e.g. educational, storytelling")
	createCmd.Flags().IntVarP(&duration, "duration", "d", 1, "target narration length in minutes")
	createCmd.Flags().StringVar(&subreddit, "subreddit", "", "pick the topic from this subreddit")
	createCmd.Flags().BoolVar(&useReddit, "reddit", false, "pick the topic from the configured subreddits")
	createCmd.MarkFlagsMutuallyExclusive("topic", "subreddit")
	createCmd.MarkFlagsMutuallyExclusive("topic", "reddit")

	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logFor(ctx)

	if topic == "" {
		if subreddit == "" && !useReddit {
			return errors.New("one of --topic, --subreddit or --reddit is required")
		}
		scraper, err := newScraper(cfg)
		if err != nil {
			return err
		}
		picked, err := scraper.Pick(ctx, subreddit)
		if err != nil {
			return fmt.Errorf("pick topic: %w", err)
		}
		log.Info().Str("source", picked.SourceURL).Int("score", picked.Score).Str("title", picked.Title).Msg("topic picked")
		topic = picked.Title
	}

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	run, err := a.orchestrator.CreateAndPublishVideo(ctx, topic, format, duration)
	if err != nil {
		var pe *pipeline.PipelineError
		if errors.As(err, &pe) {
			return fmt.Errorf("run %s failed at %s: %w", pe.RunID, pe.Stage, pe.Err)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", run.RunID, run.PublishedURL)
	return nil
}

func logFor(ctx context.Context) *zerolog.Logger {
	return logging.FromContext(ctx, "cli")
}
