package solid

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config holds the tunables of the consensus core.
type Config struct {
	// MinProposalDuration is the least time between a manifest becoming active
	// and the local node proposing its successor.
	MinProposalDuration time.Duration
	// MaxProposalHistory is the number of confirmed manifests kept below the tip.
	MaxProposalHistory uint64
	// SkipTimeout is how long to wait for the next manifest before skipping its leader.
	SkipTimeout time.Duration
	// OutOfSyncTimeout is the least time between two OutOfSync events.
	OutOfSyncTimeout time.Duration
	// AcceptThreshold selects the quorum policy.
	AcceptThreshold Threshold
	// MissingProposalTimeout is how long accepts for an unknown manifest are
	// held before the node reports that it is out of sync.
	MissingProposalTimeout time.Duration
	// EventQueueSize bounds the number of undelivered events. The oldest is dropped when full.
	EventQueueSize uint
	// OrphanCacheSize bounds the number of unknown manifests that accepts are held for.
	OrphanCacheSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MinProposalDuration:    time.Second,
		MaxProposalHistory:     1024,
		SkipTimeout:            5 * time.Second,
		OutOfSyncTimeout:       60 * time.Second,
		AcceptThreshold:        MoreThanTwoThirds,
		MissingProposalTimeout: 5 * time.Second,
		EventQueueSize:         1024,
		OrphanCacheSize:        1024,
	}
}

// Validate returns all problems with the configuration combined into one error.
func (c Config) Validate() (err error) {
	if c.MinProposalDuration < 0 {
		err = multierr.Append(err, errors.New("min proposal duration must not be negative"))
	}
	if c.MaxProposalHistory == 0 {
		err = multierr.Append(err, errors.New("max proposal history must be positive"))
	}
	if c.SkipTimeout <= 0 {
		err = multierr.Append(err, errors.New("skip timeout must be positive"))
	}
	if c.OutOfSyncTimeout < 0 {
		err = multierr.Append(err, errors.New("out of sync timeout must not be negative"))
	}
	if c.MissingProposalTimeout < 0 {
		err = multierr.Append(err, errors.New("missing proposal timeout must not be negative"))
	}
	if c.AcceptThreshold != MoreThanTwoThirds && c.AcceptThreshold != Majority {
		err = multierr.Append(err, fmt.Errorf("unknown accept threshold %v", c.AcceptThreshold))
	}
	if c.EventQueueSize == 0 {
		err = multierr.Append(err, errors.New("event queue size must be positive"))
	}
	if c.OrphanCacheSize <= 0 {
		err = multierr.Append(err, errors.New("orphan cache size must be positive"))
	}
	return err
}
