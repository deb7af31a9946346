package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muninndb/muninn/pkg/config"
)

func newFlaggedCommand(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "search"}
	cmd.Flags().String("memory-path", "", "")
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("full-text", false, "")
	return cmd
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Run("unset flags leave config untouched", func(t *testing.T) {
		cmd := newFlaggedCommand(t)
		require.NoError(t, cmd.Flags().Parse(nil))

		cfg := config.LoadDefaults()
		cfg.Features.FullTextSearch = true
		before := *cfg

		applyFlagOverrides(cmd, cfg)
		assert.Equal(t, before, *cfg)
	})

	t.Run("full-text flag enables the feature", func(t *testing.T) {
		cmd := newFlaggedCommand(t)
		require.NoError(t, cmd.Flags().Parse([]string{"--full-text"}))

		cfg := config.LoadDefaults()
		require.False(t, cfg.Features.FullTextSearch)

		applyFlagOverrides(cmd, cfg)
		assert.True(t, cfg.Features.FullTextSearch)
	})

	t.Run("explicit false disables a config-enabled feature", func(t *testing.T) {
		cmd := newFlaggedCommand(t)
		require.NoError(t, cmd.Flags().Parse([]string{"--full-text=false"}))

		cfg := config.LoadDefaults()
		cfg.Features.FullTextSearch = true

		applyFlagOverrides(cmd, cfg)
		assert.False(t, cfg.Features.FullTextSearch)
	})

	t.Run("path and level flags override", func(t *testing.T) {
		cmd := newFlaggedCommand(t)
		require.NoError(t, cmd.Flags().Parse([]string{
			"--memory-path", "/tmp/alt.jsonl", "--log-level", "debug",
		}))

		cfg := config.LoadDefaults()
		applyFlagOverrides(cmd, cfg)
		assert.Equal(t, "/tmp/alt.jsonl", cfg.Storage.MemoryPath)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("commands without the full-text flag are safe", func(t *testing.T) {
		cmd := &cobra.Command{Use: "stats"}
		cmd.Flags().String("memory-path", "", "")
		cmd.Flags().String("log-level", "", "")
		require.NoError(t, cmd.Flags().Parse(nil))

		cfg := config.LoadDefaults()
		cfg.Features.FullTextSearch = true

		applyFlagOverrides(cmd, cfg)
		assert.True(t, cfg.Features.FullTextSearch)
	})
}
