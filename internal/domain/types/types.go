// Package types contains common types used across the application
package types

import "time"

// Entry represents a leaderboard row
type Entry struct {
	Rank       int        `json:"rank"`
	ItemID     string     `json:"item_id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Rating     float64    `json:"rating"`
	Wins       int        `json:"wins"`
	Losses     int        `json:"losses"`
	Matches    int        `json:"matches"`
	LastPlayed *time.Time `json:"last_played,omitempty"`
}
