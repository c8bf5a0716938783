package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forPelevin/yt2text/internal/config"
	"github.com/forPelevin/yt2text/internal/logging"
	"github.com/forPelevin/yt2text/internal/pipeline"
)

func run(cmd *cobra.Command, v *viper.Viper, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	listFile, _ := cmd.Flags().GetString("file")

	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	refs, err := pipeline.CollectReferences(args, listFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx, cfg, refs, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderSummary(res.Report, shouldColorize(out)))
	if res.ReportPath != "" {
		fmt.Fprintln(out, "report:", res.ReportPath)
	}
	return nil
}
