package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/UnamanoDAO/AI-IELTS/internal/segment"
)

var (
	segmentMax      int
	segmentLookback int
	segmentQuiet    bool

	segmentCmd = &cobra.Command{
		Use:   "segment [FILE|-]",
		Short: "Split text into bounded segments and verify them",
		Long: paragraph(fmt.Sprintf("\n%s the text into segments no longer than the limit, preferring sentence ends, and check that the segments rebuild the text exactly.",
			keyword("Split"))),
		Example: paragraph("readaloud segment article.txt\ncat article.txt | readaloud segment --max 300"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSegment,
	}
)

func init() {
	segmentCmd.Flags().IntVar(&segmentMax, "max", 0, "maximum segment length in characters (default from config)")
	segmentCmd.Flags().IntVar(&segmentLookback, "lookback", 0, "characters searched back for a clause separator when a sentence is cut")
	segmentCmd.Flags().BoolVarP(&segmentQuiet, "quiet", "q", false, "only print the verification result")
}

func runSegment(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	text, name, err := readInput(args)
	if err != nil {
		return err
	}

	sc := cfg.SegmentConfig()
	if segmentMax > 0 {
		sc = sc.WithMaxLength(segmentMax)
	}
	if segmentLookback > 0 {
		sc.LookbackWindow = segmentLookback
	}

	segments, err := segment.Split(text, sc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !segmentQuiet {
		width := outputWidth() - 16
		for _, s := range segments {
			fmt.Fprintf(out, "%s %s %s\n", index(fmt.Sprintf("#%d", s.Index)), faint(fmt.Sprintf("%4d", s.Len)), preview(s.Text, width))
		}
		fmt.Fprintln(out)
	}

	report := segment.VerifyBounded(text, segments, sc.MaxLength)
	if !report.OK {
		fmt.Fprintln(os.Stderr, failure("✗ integrity check failed:"), report.String())
		return report.Err()
	}
	fmt.Fprintf(out, "%s %s: %s characters in %d segments (max %d)\n",
		success("✓"), name, humanize.Comma(int64(report.SourceLen)), len(segments), sc.MaxLength)
	return nil
}
