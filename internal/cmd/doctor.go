package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/audit"
	"github.com/dativo-io/veil/internal/cipher"
	"github.com/dativo-io/veil/internal/config"
)

const doctorProbeText = "Call John at 555-123-4567"

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, keys, cipher, detector, SQLite)",
	Long:  "Verifies the data directory is writable, the cipher round-trips, the detector answers, and the audit DB is usable.",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

//nolint:gocyclo // preflight runs a linear sequence of independent checks
func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	ok := true

	// 1. Data directory writable
	dataDir := cfg.DataDir
	if err := cfg.EnsureDataDir(); err != nil {
		fmt.Fprintf(out, "✗ Data directory: %s (%v)\n", dataDir, err)
		ok = false
	} else {
		testFile := filepath.Join(dataDir, ".doctor-write-test")
		if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
			fmt.Fprintf(out, "✗ Data directory: %s not writable (%v)\n", dataDir, err)
			ok = false
		} else {
			_ = os.Remove(testFile)
			fmt.Fprintf(out, "✓ Data directory: %s (writable)\n", dataDir)
		}
	}

	// 2. Crypto keys (warn if default)
	if cfg.UsingDefaultCipherKey() {
		fmt.Fprintf(out, "⚠ Cipher key: using generated default; set VEIL_CIPHER_KEY for production\n")
	} else {
		fmt.Fprintf(out, "✓ Cipher key: configured\n")
	}
	if cfg.UsingDefaultSigningKey() {
		fmt.Fprintf(out, "⚠ Signing key: using generated default; set VEIL_SIGNING_KEY for production\n")
	} else {
		fmt.Fprintf(out, "✓ Signing key: configured\n")
	}

	// 3. Cipher round trip
	op, err := cipher.New(cfg.CipherAlgorithm, cfg.CipherKey)
	if err == nil {
		var token, plain string
		if token, err = op.Encrypt("doctor"); err == nil {
			plain, err = op.Decrypt(token)
			if err == nil && plain != "doctor" {
				err = fmt.Errorf("round trip returned %q", plain)
			}
		}
	}
	if err != nil {
		fmt.Fprintf(out, "✗ Cipher (%s): %v\n", cfg.CipherAlgorithm, err)
		ok = false
	} else {
		fmt.Fprintf(out, "✓ Cipher (%s): round trip ok\n", cfg.CipherAlgorithm)
	}

	// 4. Detector answers
	det, err := buildDetector(cfg)
	var found int
	if err == nil {
		spans, derr := det.Detect(ctx, doctorProbeText, cfg.Entities, cfg.Language)
		found, err = len(spans), derr
	}
	if err != nil {
		fmt.Fprintf(out, "✗ Detector (%s): %v\n", cfg.Detector, err)
		ok = false
	} else {
		fmt.Fprintf(out, "✓ Detector (%s): %d entities in probe text\n", cfg.Detector, found)
	}

	// 5. SQLite audit store
	if cfg.AuditEnabled {
		store, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
		if err != nil {
			fmt.Fprintf(out, "✗ Audit DB: %v\n", err)
			ok = false
		} else {
			_ = store.Close()
			fmt.Fprintf(out, "✓ Audit DB: %s\n", cfg.AuditDBPath())
		}
	} else {
		fmt.Fprintf(out, "- Audit DB: disabled\n")
	}

	if !ok {
		return fmt.Errorf("preflight checks failed")
	}
	fmt.Fprintf(out, "\nAll checks passed.\n")
	return nil
}
