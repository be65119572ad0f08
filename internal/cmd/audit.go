package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/audit"
	"github.com/dativo-io/veil/internal/config"
)

var (
	auditOperation string
	auditSession   string
	auditLimit     int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the signed audit trail",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE:  auditList,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [event-id]",
	Short: "Verify HMAC signature of an audit event",
	Args:  cobra.ExactArgs(1),
	RunE:  auditVerify,
}

func init() {
	auditListCmd.Flags().StringVar(&auditOperation, "operation", "", "Filter by operation (anonymize, deanonymize)")
	auditListCmd.Flags().StringVar(&auditSession, "session", "", "Filter by session ID")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum records to show")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAuditStore() (*audit.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	events, err := store.List(ctx, audit.ListFilter{
		Operation: auditOperation,
		SessionID: auditSession,
		Limit:     auditLimit,
	})
	if err != nil {
		return fmt.Errorf("querying audit events: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit events found.")
		return nil
	}
	renderAuditList(out, events)
	return nil
}

func auditVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	eventID := args[0]

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	valid, err := store.Verify(ctx, eventID)
	if err != nil {
		return fmt.Errorf("verifying audit event: %w", err)
	}
	renderVerifyResult(cmd.OutOrStdout(), eventID, valid)
	if !valid {
		return fmt.Errorf("signature verification failed for %s", eventID)
	}
	return nil
}

// renderAuditList writes audit event lines to w (testable).
func renderAuditList(w io.Writer, events []audit.Event) {
	fmt.Fprintf(w, "Audit Events (showing %d):\n\n", len(events))
	for i := range events {
		ev := &events[i]
		status := "✓"
		if !ev.Success {
			status = "✗"
		}
		caller := ev.Caller
		if caller == "" {
			caller = "-"
		}
		errorMark := ""
		if ev.Error != "" {
			errorMark = " [ERROR]"
		}
		fmt.Fprintf(w, "  %s %s | %s | %-11s | session %s | caller %s | %d entities [%s]%s\n",
			status,
			ev.ID,
			ev.Timestamp.Format("2006-01-02 15:04:05"),
			ev.Operation,
			ev.SessionID,
			caller,
			ev.EntitiesFound,
			strings.Join(ev.EntityTypes, ","),
			errorMark,
		)
	}
}

// renderVerifyResult writes verify outcome to w (testable).
func renderVerifyResult(w io.Writer, eventID string, valid bool) {
	if valid {
		fmt.Fprintf(w, "✓ Event %s: signature VALID (HMAC-SHA256 intact)\n", eventID)
	} else {
		fmt.Fprintf(w, "✗ Event %s: signature INVALID (possible tampering)\n", eventID)
	}
}
