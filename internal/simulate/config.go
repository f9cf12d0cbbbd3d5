// Package simulate drives a running server with synthetic voters and
// measures how well the resulting leaderboard recovers their hidden order.
package simulate

import (
	"errors"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL       string        // Base URL of the service
	ListID        int64         // List to vote on
	Voters        int           // Number of synthetic voters
	VotesPerVoter int           // Votes each voter casts
	Workers       int           // Voters running at once
	Noise         float64       // Probability a voter picks the weaker item
	Seed          uint64        // Seed for names, choices and the hidden order
	Timeout       time.Duration // HTTP request timeout
	TopN          int           // Leaderboard size used for the correlation
	Secret        string        // Signs voter tokens when the server requires them
	RetryDelay    time.Duration // Pause before retrying a throttled vote
}

// Defaults applied by Normalize.
const (
	DefaultVoters        = 20
	DefaultVotesPerVoter = 50
	DefaultTopN          = 100
	DefaultTimeout       = 10 * time.Second
	DefaultRetryDelay    = 250 * time.Millisecond
)

// ErrBadConfig is returned for unusable run parameters.
var ErrBadConfig = errors.New("invalid simulation config")

// Normalize fills defaults and checks ranges.
func (c *Config) Normalize() error {
	if c.BaseURL == "" {
		return errors.Join(ErrBadConfig, errors.New("base url is required"))
	}
	if c.ListID <= 0 {
		c.ListID = 1
	}
	if c.Voters <= 0 {
		c.Voters = DefaultVoters
	}
	if c.VotesPerVoter <= 0 {
		c.VotesPerVoter = DefaultVotesPerVoter
	}
	if c.Workers <= 0 || c.Workers > c.Voters {
		c.Workers = c.Voters
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Noise < 0 || c.Noise >= 0.5 {
		return errors.Join(ErrBadConfig, errors.New("noise must be within [0,0.5)"))
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	VotesCast     int
	VotesRejected int
	Retries       int
	Sessions      int
	Items         int
	Correlation   float64
	StartTime     time.Time
	Duration      time.Duration
}
