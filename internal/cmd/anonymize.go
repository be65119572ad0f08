package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/session"
	"github.com/dativo-io/veil/internal/span"
)

var anonymizeRoundTrip bool

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize [text]",
	Short: "Anonymize text once and print the result as JSON",
	Long:  "Anonymizes the argument, or stdin when no argument is given. Sessions are not persisted; use --round-trip to check the result restores.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnonymize,
}

func init() {
	anonymizeCmd.Flags().BoolVar(&anonymizeRoundTrip, "round-trip", false, "deanonymize the result and include it in the output")
	rootCmd.AddCommand(anonymizeCmd)
}

type anonymizeOutput struct {
	Result    string        `json:"result"`
	Items     []span.Record `json:"items"`
	SessionID string        `json:"session_id"`
	Skipped   []span.Entity `json:"skipped,omitempty"`
	Restored  string        `json:"restored,omitempty"`
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	ctx, sp := tracer.Start(cmd.Context(), "anonymize")
	defer sp.End()

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	svc, err := buildService(cfg, session.NewCache(), nil)
	if err != nil {
		return err
	}

	res, err := svc.Anonymize(ctx, text)
	if err != nil {
		return err
	}
	out := anonymizeOutput{
		Result:    res.Text,
		Items:     res.Records,
		SessionID: res.SessionID,
		Skipped:   res.Skipped,
	}
	if anonymizeRoundTrip {
		out.Restored, err = svc.Deanonymize(ctx, res.SessionID)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// inputText returns the single argument or, when absent, all of stdin with the
// trailing newline removed.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
