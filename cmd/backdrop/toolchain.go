package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/amankumarsingh77/backdrop/internal/mux"
	"github.com/spf13/cobra"
)

var toolchainCmd = &cobra.Command{
	Use:   "toolchain",
	Short: "Resolve the encoder and remux capabilities of this host",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		caps, err := mux.Discover(cmd.Context(), cfg.Media, appLog)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ffmpeg\t%s\n", caps.FFmpegPath)
		for i, codec := range caps.Codecs {
			fmt.Fprintf(w, "codec %d\t%s\n", i+1, codec)
		}
		remux := caps.RemuxPath
		if remux == "" {
			remux = "(none, outputs will be silent)"
		}
		fmt.Fprintf(w, "remux\t%s\n", remux)
		fmt.Fprintf(w, "audio\t%t\n", caps.AudioSupported())
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolchainCmd)
}
