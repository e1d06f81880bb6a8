package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vidaudit/internal/config"
	"github.com/fyrsmithlabs/vidaudit/internal/logging"
	"github.com/fyrsmithlabs/vidaudit/internal/video"
)

var (
	extractVideoPath  string
	extractConfigPath string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract video events and print them as JSON",
	Long: `Extract visual change events from a recording without running the full
audit. Useful for tuning the scene-change threshold and debounce gap.

Examples:
  vidaudit extract --video recordings/run.webm
  vidaudit extract --video recordings/ | jq '.[].timestamp'`,
	RunE: runExtractEvents,
}

func init() {
	extractCmd.Flags().StringVar(&extractVideoPath, "video", "", "video file or directory of video files")
	extractCmd.Flags().StringVar(&extractConfigPath, "config", "", "path to YAML config file")
	_ = extractCmd.MarkFlagRequired("video")
}

func runExtractEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(extractConfigPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	paths, err := video.DiscoverSources(extractVideoPath)
	if err != nil {
		return err
	}

	events, err := video.NewExtractor(cfg.Video, logger).Extract(cmd.Context(), paths)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
