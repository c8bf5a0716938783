package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forPelevin/yt2text/internal/config"
	"github.com/forPelevin/yt2text/internal/types"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}

// Execute runs the root command with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(viper.New())
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "yt2text [flags] [url...]",
		Short: "Turn YouTube videos into .srt and .txt transcripts",
		Long: `yt2text fetches an existing caption track for each video when one is
available and falls back to downloading the audio and transcribing it.
Every video produces {title}.srt and {title}.txt in the output directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, v, args)
			if errors.Is(err, types.ErrConfig) {
				_ = cmd.Usage()
			}
			return err
		},
	}

	fs := root.Flags()
	fs.String("config", "", "Config file (default ./yt2text.yaml or ~/.config/yt2text/yt2text.yaml)")
	fs.StringP("file", "f", "", "File with one URL per line (# comments and blank lines ignored)")
	config.RegisterFlags(fs)

	return root
}
