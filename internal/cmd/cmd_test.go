package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/span"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	expected := []string{
		"version",
		"serve",
		"anonymize",
		"detect",
		"audit",
		"config",
		"doctor",
	}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "subcommand %q should be registered", name)
	}
}

func TestRootCommand_HelpOutput(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "encrypted tokens")
	assert.Contains(t, output, "anonymize")
	assert.Contains(t, output, "serve")
}

func TestVersionVars_HaveDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "none", Commit)
	assert.Equal(t, "unknown", BuildDate)
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		flagName string
	}{
		{"config flag", "config"},
		{"verbose flag", "verbose"},
		{"log-level flag", "log-level"},
		{"log-format flag", "log-format"},
		{"otel flag", "otel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := rootCmd.PersistentFlags().Lookup(tt.flagName)
			assert.NotNil(t, flag, "flag %q should be registered", tt.flagName)
		})
	}
}

func TestRootCommand_UseAndShort(t *testing.T) {
	assert.Equal(t, "veil", rootCmd.Use)
	assert.Equal(t, "Reversible PII anonymization service", rootCmd.Short)
}

func TestPackageLevelTracer_IsNotNil(t *testing.T) {
	assert.NotNil(t, tracer, "package-level tracer should be initialized")
}

func TestServeCmd_Flags(t *testing.T) {
	addr := serveCmd.Flags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, ":5000", addr.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("cors-origin"))
	maxBody := serveCmd.Flags().Lookup("max-body-bytes")
	require.NotNil(t, maxBody)
	assert.Equal(t, "10485760", maxBody.DefValue)
}

func TestAnonymizeCmd_RoundTrip(t *testing.T) {
	t.Setenv("VEIL_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"anonymize", "--round-trip", "Call John at 555-123-4567"})
	t.Cleanup(func() { anonymizeRoundTrip = false })

	require.NoError(t, rootCmd.Execute())

	var out anonymizeOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.NotEmpty(t, out.SessionID)
	assert.NotContains(t, out.Result, "John")
	assert.Len(t, out.Items, 2)
	assert.Equal(t, "Call John at 555-123-4567", out.Restored)
}

func TestAnonymizeCmd_Stdin(t *testing.T) {
	t.Setenv("VEIL_DATA_DIR", t.TempDir())

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader("mail jane@example.com\n"))
	rootCmd.SetArgs([]string{"anonymize"})
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	require.NoError(t, rootCmd.Execute())

	var out anonymizeOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, "EMAIL_ADDRESS", out.Items[0].EntityType)
	assert.True(t, strings.HasPrefix(out.Result, "mail "))
}

func TestRenderSpans(t *testing.T) {
	var empty bytes.Buffer
	renderSpans(&empty, "nothing here", nil)
	assert.Equal(t, "No PII detected.\n", empty.String())

	var buf bytes.Buffer
	text := "Call John"
	renderSpans(&buf, text, []span.Entity{{EntityType: "PERSON", Start: 5, End: 9, Score: 0.85}})
	out := buf.String()
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "PERSON")
	assert.Contains(t, out, "0.85")
	assert.Contains(t, out, "John")
}
