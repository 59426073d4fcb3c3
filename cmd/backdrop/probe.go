package main

import (
	"fmt"

	"github.com/amankumarsingh77/backdrop/internal/media"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <video>",
	Short: "Print the resolution, frame rate and frame count of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		prober := &media.Prober{Path: cfg.Media.FFprobePath, Timeout: cfg.Media.ProbeTimeout}
		info, err := prober.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "width:  %d\nheight: %d\nfps:    %.3f\nframes: %d\n",
			info.Width, info.Height, info.FPS, info.FrameCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
