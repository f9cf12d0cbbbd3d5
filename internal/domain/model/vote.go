package model

import "time"

// Voter is the opaque identity handed over by the authentication collaborator.
type Voter struct {
	UserID    string
	Name      string
	IsTeacher bool
	IsStudent bool
}

// Anonymous reports whether the voter carries neither a user id nor a name.
func (v Voter) Anonymous() bool { return v.UserID == "" && v.Name == "" }

// Ballot is one voter action submitted to the vote ledger.
type Ballot struct {
	WinnerID string
	LoserID  string
	Voter    Voter
	ListID   ListID
	At       time.Time
}

// Vote is the immutable, append-only record of a ballot.
type Vote struct {
	ID        string
	WinnerID  string
	LoserID   string
	VoterID   string
	VoterName string
	ListID    ListID
	CreatedAt time.Time
}

// VoteResult carries the authoritative ratings after the vote transaction.
type VoteResult struct {
	VoteID        string
	WinnerRating  float64
	LoserRating   float64
	Winner        Item
	Loser         Item
	WinnerDelta   float64
	LoserDelta    float64
	EffectiveK    float64
	WinnerExpects float64
}

// VoteEvent is published after a committed vote so read models can catch up.
type VoteEvent struct {
	VoteID string
	ListID ListID
	Winner Item
	Loser  Item
	At     time.Time
}
