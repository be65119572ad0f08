package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/veil/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage veil configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration (keys redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		out := cmd.OutOrStdout()

		source := viper.ConfigFileUsed()
		if source == "" {
			source = "(none, env and defaults only)"
		}
		dirState := "(missing)"
		if dirExists(cfg.DataDir) {
			dirState = "(exists)"
		}
		fmt.Fprintf(out, "Config file:      %s\n", source)
		fmt.Fprintf(out, "Data directory:   %s %s\n", cfg.DataDir, dirState)
		fmt.Fprintf(out, "Cipher:           %s, key %s\n", cfg.CipherAlgorithm, keyState(cfg.UsingDefaultCipherKey()))
		fmt.Fprintf(out, "Signing key:      %s\n", keyState(cfg.UsingDefaultSigningKey()))
		fmt.Fprintf(out, "Detector:         %s\n", describeDetector(cfg))
		fmt.Fprintf(out, "Entities:         %s (language %s, min score %.2f)\n", strings.Join(cfg.Entities, ", "), cfg.Language, cfg.MinScore)
		fmt.Fprintf(out, "Session TTL:      %s\n", describeTTL(cfg))
		fmt.Fprintf(out, "Audit DB:         %s\n", describeAudit(cfg))
		fmt.Fprintf(out, "Rate limit:       %s\n", describeRate(cfg.RateLimit))
		fmt.Fprintf(out, "API keys:         %d configured\n", len(cfg.APIKeys))
		fmt.Fprintf(out, "OTel exporter:    %s\n", cfg.OTelExporter)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func keyState(derived bool) string {
	if derived {
		return "generated default"
	}
	return "configured"
}

func describeDetector(cfg *config.Config) string {
	if cfg.Detector == config.DetectorPresidio {
		return fmt.Sprintf("presidio at %s (timeout %s)", cfg.PresidioURL, cfg.DetectorTimeout)
	}
	if cfg.PatternFile == "" {
		return "local (embedded recognizers)"
	}
	state := "missing, ignored"
	if fileExists(cfg.PatternFile) {
		state = "loaded"
	}
	return fmt.Sprintf("local + %s (%s)", cfg.PatternFile, state)
}

func describeTTL(cfg *config.Config) string {
	if cfg.SessionTTL <= 0 {
		return "none (sessions kept for process lifetime)"
	}
	return fmt.Sprintf("%s, swept %s", cfg.SessionTTL, cfg.SweepSchedule)
}

func describeAudit(cfg *config.Config) string {
	if !cfg.AuditEnabled {
		return "disabled"
	}
	return cfg.AuditDBPath()
}

func describeRate(rps float64) string {
	if rps <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%g req/s per client", rps)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
