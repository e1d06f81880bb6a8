package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vidaudit/internal/config"
	"github.com/fyrsmithlabs/vidaudit/internal/engine"
	"github.com/fyrsmithlabs/vidaudit/internal/logging"
	"github.com/fyrsmithlabs/vidaudit/internal/pipeline"
	"github.com/fyrsmithlabs/vidaudit/internal/report"
	"github.com/fyrsmithlabs/vidaudit/internal/semantic"
	"github.com/fyrsmithlabs/vidaudit/internal/video"
)

var (
	runPlanningLog string
	runVideoPath   string
	runTestOutput  string
	runOutputDir   string
	runConfigPath  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full audit and write the deviation report",
	Long: `Run a full audit: parse the planning log and test output, extract events
from the recording, correlate steps against events and write report.json and
report.md into the output directory.

Exit code is 0 when no deviations were found, 1 when the report contains
deviations, 2 on any fatal error.

Examples:
  # Audit a single recording
  vidaudit run --planning-log logs/plan.json --video recordings/run.webm

  # Multiple recordings in a directory, with test results
  vidaudit run --planning-log logs/plan.json --video recordings/ \
    --test-output results/junit.xml --output-dir reports/`,
	RunE: runAudit,
}

func init() {
	runCmd.Flags().StringVar(&runPlanningLog, "planning-log", "", "path to the agent planning log (JSON)")
	runCmd.Flags().StringVar(&runVideoPath, "video", "", "video file or directory of video files")
	runCmd.Flags().StringVar(&runTestOutput, "test-output", "", "JUnit XML or HTML test report (optional)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "directory for the reports (defaults to report.output_dir)")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to YAML config file")
	_ = runCmd.MarkFlagRequired("planning-log")
	_ = runCmd.MarkFlagRequired("video")
}

func runAudit(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	matcher, err := semantic.NewMatcher(cfg.Matcher, logger)
	if err != nil {
		return err
	}

	extractor := video.NewExtractor(cfg.Video, logger)
	eng := engine.New(cfg.Engine, matcher, logger)
	runner := pipeline.NewRunner(extractor, eng, logger)

	result, err := runner.Run(cmd.Context(), pipeline.Inputs{
		PlanningLog: runPlanningLog,
		VideoPath:   runVideoPath,
		TestOutput:  runTestOutput,
	})
	if err != nil {
		return err
	}

	outDir := runOutputDir
	if outDir == "" {
		outDir = cfg.Report.OutputDir
	}
	assembler := report.NewAssembler(cfg.Report, logger)
	jsonPath, mdPath, err := assembler.Write(outDir, assembler.Assemble(result))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Summary.Status)
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s and %s\n", jsonPath, mdPath)

	if result.Summary.DeviationCount > 0 {
		return errDeviationsFound
	}
	return nil
}
