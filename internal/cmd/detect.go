package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/span"
)

var detectCmd = &cobra.Command{
	Use:   "detect [text]",
	Short: "Print the PII spans the configured detector finds",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx, sp := tracer.Start(cmd.Context(), "detect")
	defer sp.End()

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	det, err := buildDetector(cfg)
	if err != nil {
		return err
	}
	spans, err := det.Detect(ctx, text, cfg.Entities, cfg.Language)
	if err != nil {
		return err
	}
	span.SortByStart(spans)
	renderSpans(cmd.OutOrStdout(), text, spans)
	return nil
}

// renderSpans writes one line per span (testable).
func renderSpans(w io.Writer, text string, spans []span.Entity) {
	if len(spans) == 0 {
		fmt.Fprintln(w, "No PII detected.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTART\tEND\tSCORE\tTEXT")
	for _, s := range spans {
		value := ""
		if s.Valid(len(text)) {
			value = text[s.Start:s.End]
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\n", s.EntityType, s.Start, s.End, s.Score, value)
	}
	_ = tw.Flush()
}
