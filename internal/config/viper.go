// Package config loads the consensus configuration with viper.
package config

import (
	"fmt"

	"github.com/relab/solid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys read by Load. Flags registered by RegisterFlags use the same names.
const (
	KeyMinProposalDuration    = "min-proposal-duration"
	KeyMaxProposalHistory     = "max-proposal-history"
	KeySkipTimeout            = "skip-timeout"
	KeyOutOfSyncTimeout       = "out-of-sync-timeout"
	KeyAcceptThreshold        = "accept-threshold"
	KeyMissingProposalTimeout = "missing-proposal-timeout"
	KeyEventQueueSize         = "event-queue-size"
	KeyOrphanCacheSize        = "orphan-cache-size"
)

// RegisterFlags adds a flag for every configuration key to flags, with the defaults of solid.DefaultConfig.
func RegisterFlags(flags *pflag.FlagSet) {
	def := solid.DefaultConfig()
	flags.Duration(KeyMinProposalDuration, def.MinProposalDuration, "least time between a manifest becoming active and proposing its successor")
	flags.Uint64(KeyMaxProposalHistory, def.MaxProposalHistory, "number of confirmed manifests kept below the tip")
	flags.Duration(KeySkipTimeout, def.SkipTimeout, "how long to wait for the next manifest before skipping its leader")
	flags.Duration(KeyOutOfSyncTimeout, def.OutOfSyncTimeout, "least time between two out of sync events")
	flags.String(KeyAcceptThreshold, def.AcceptThreshold.String(), "quorum policy (two-thirds, majority)")
	flags.Duration(KeyMissingProposalTimeout, def.MissingProposalTimeout, "how long accepts for an unknown manifest are held before reporting out of sync")
	flags.Uint(KeyEventQueueSize, def.EventQueueSize, "number of undelivered events kept")
	flags.Int(KeyOrphanCacheSize, def.OrphanCacheSize, "number of unknown manifests that accepts are held for")
}

// SetDefaults registers the defaults of solid.DefaultConfig with v.
func SetDefaults(v *viper.Viper) {
	def := solid.DefaultConfig()
	v.SetDefault(KeyMinProposalDuration, def.MinProposalDuration)
	v.SetDefault(KeyMaxProposalHistory, def.MaxProposalHistory)
	v.SetDefault(KeySkipTimeout, def.SkipTimeout)
	v.SetDefault(KeyOutOfSyncTimeout, def.OutOfSyncTimeout)
	v.SetDefault(KeyAcceptThreshold, def.AcceptThreshold.String())
	v.SetDefault(KeyMissingProposalTimeout, def.MissingProposalTimeout)
	v.SetDefault(KeyEventQueueSize, def.EventQueueSize)
	v.SetDefault(KeyOrphanCacheSize, def.OrphanCacheSize)
}

// Load reads the consensus configuration from v and validates it.
func Load(v *viper.Viper) (solid.Config, error) {
	SetDefaults(v)

	threshold, err := solid.ParseThreshold(v.GetString(KeyAcceptThreshold))
	if err != nil {
		return solid.Config{}, err
	}

	cfg := solid.Config{
		MinProposalDuration:    v.GetDuration(KeyMinProposalDuration),
		MaxProposalHistory:     v.GetUint64(KeyMaxProposalHistory),
		SkipTimeout:            v.GetDuration(KeySkipTimeout),
		OutOfSyncTimeout:       v.GetDuration(KeyOutOfSyncTimeout),
		AcceptThreshold:        threshold,
		MissingProposalTimeout: v.GetDuration(KeyMissingProposalTimeout),
		EventQueueSize:         v.GetUint(KeyEventQueueSize),
		OrphanCacheSize:        v.GetInt(KeyOrphanCacheSize),
	}
	if err := cfg.Validate(); err != nil {
		return solid.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
