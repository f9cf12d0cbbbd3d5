package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/okian/versus/internal/domain/model"
)

type itemRow struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID            string     `bun:"id,pk"`
	ListID        int64      `bun:"list_id,notnull"`
	Name          string     `bun:"name,notnull"`
	NameKey       string     `bun:"name_key,notnull"`
	Category      string     `bun:"category,notnull"`
	Rating        float64    `bun:"rating,notnull"`
	Wins          int        `bun:"wins,notnull"`
	Losses        int        `bun:"losses,notnull"`
	Matches       int        `bun:"matches,notnull"`
	LastPlayed    *time.Time `bun:"last_played"`
	Approved      bool       `bun:"approved,notnull"`
	SubmitterID   string     `bun:"submitter_id,notnull"`
	SubmitterName string     `bun:"submitter_name,notnull"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	Year          *int       `bun:"year"`
}

type voteRow struct {
	bun.BaseModel `bun:"table:votes,alias:v"`

	ID        string    `bun:"id,pk"`
	ListID    int64     `bun:"list_id,notnull"`
	WinnerID  string    `bun:"winner_id,notnull"`
	LoserID   string    `bun:"loser_id,notnull"`
	VoterID   string    `bun:"voter_id,notnull"`
	VoterName string    `bun:"voter_name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func rowFromItem(it model.Item, key string) itemRow {
	r := itemRow{
		ID:            it.ID,
		ListID:        int64(it.ListID),
		Name:          it.Name,
		NameKey:       key,
		Category:      it.Category,
		Rating:        it.Rating,
		Wins:          it.Wins,
		Losses:        it.Losses,
		Matches:       it.Matches,
		Approved:      it.Approved,
		SubmitterID:   it.SubmitterID,
		SubmitterName: it.SubmitterName,
		CreatedAt:     it.CreatedAt.UTC(),
		Year:          it.Year,
	}
	if it.LastPlayed != nil {
		lp := it.LastPlayed.UTC()
		r.LastPlayed = &lp
	}
	return r
}

func (r itemRow) item() model.Item {
	it := model.Item{
		ID:            r.ID,
		ListID:        model.ListID(r.ListID),
		Name:          r.Name,
		Category:      r.Category,
		Rating:        r.Rating,
		Wins:          r.Wins,
		Losses:        r.Losses,
		Matches:       r.Matches,
		Approved:      r.Approved,
		SubmitterID:   r.SubmitterID,
		SubmitterName: r.SubmitterName,
		CreatedAt:     r.CreatedAt,
	}
	if r.LastPlayed != nil {
		lp := *r.LastPlayed
		it.LastPlayed = &lp
	}
	if r.Year != nil {
		y := *r.Year
		it.Year = &y
	}
	return it
}

func items(rows []itemRow) []model.Item {
	out := make([]model.Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.item())
	}
	return out
}
