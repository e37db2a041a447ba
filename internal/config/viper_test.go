package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/relab/solid"
	"github.com/relab/solid/internal/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(solid.DefaultConfig(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solid.yaml")
	data := []byte("skip-timeout: 2s\naccept-threshold: majority\nmax-proposal-history: 16\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatal(err)
	}

	want := solid.DefaultConfig()
	want.SkipTimeout = 2 * time.Second
	want.AcceptThreshold = solid.Majority
	want.MaxProposalHistory = 16
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	if err := flags.Parse([]string{"--min-proposal-duration=250ms", "--event-queue-size=8"}); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinProposalDuration != 250*time.Millisecond || cfg.EventQueueSize != 8 {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.SkipTimeout != solid.DefaultConfig().SkipTimeout {
		t.Errorf("SkipTimeout = %v, want the default", cfg.SkipTimeout)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
	}{
		{config.KeyAcceptThreshold, "unanimous"},
		{config.KeySkipTimeout, "0s"},
		{config.KeyMaxProposalHistory, 0},
		{config.KeyEventQueueSize, 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			if _, err := config.Load(v); err == nil {
				t.Errorf("Load() with %s=%v succeeded", tt.key, tt.value)
			}
		})
	}
}
