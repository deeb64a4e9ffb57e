package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/graphtag/internal/config"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  string
		wantArgs []string
	}{
		{name: "no args", args: nil, wantCmd: "build", wantArgs: nil},
		{name: "flags only", args: []string{"--debug"}, wantCmd: "build", wantArgs: []string{"--debug"}},
		{name: "subcommand", args: []string{"serve", "--port", "9000"}, wantCmd: "serve", wantArgs: []string{"--port", "9000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := splitCommand(tt.args)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func parse(t *testing.T, args ...string) *cliOptions {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := registerFlags(fs)
	require.NoError(t, fs.Parse(args))
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts
}

func TestLoadConfig_Flags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(parse(t,
		"--input", "/in",
		"--output", "/out",
		"--threshold-percentile", "0.9",
		"--workers", "3",
		"--db", "/tmp/runs.db",
		"--port", "9000",
	))
	require.NoError(t, err)

	assert.Equal(t, "/in", cfg.InputDir)
	assert.Equal(t, "/out", cfg.OutputDir)
	assert.Equal(t, 0.9, cfg.ThresholdPercentile)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "/tmp/runs.db", cfg.DBPath)
	assert.Equal(t, 9000, cfg.HTTPPort)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(parse(t))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultThresholdPercentile, cfg.ThresholdPercentile)
	assert.Equal(t, config.DefaultPattern, cfg.Pattern)
	assert.FileExists(t, config.SettingsPath())
}

func TestLoadConfig_Profile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".graphtag"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".graphtag", "profiles.yml"), []byte(`
profiles:
  - name: reports
    input_dir: /reports/results
    threshold_percentile: 80
`), 0600))

	cfg, err := loadConfig(parse(t, "--profile", "reports"))
	require.NoError(t, err)
	assert.Equal(t, "/reports/results", cfg.InputDir)
	assert.Equal(t, 80.0, cfg.ThresholdPercentile)

	// flags win over the profile
	cfg, err = loadConfig(parse(t, "--profile", "reports", "--threshold-percentile", "60"))
	require.NoError(t, err)
	assert.Equal(t, 60.0, cfg.ThresholdPercentile)

	_, err = loadConfig(parse(t, "--profile", "missing"))
	assert.ErrorContains(t, err, "unknown profile")
}
