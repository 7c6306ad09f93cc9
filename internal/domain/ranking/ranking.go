// Package ranking derives the ordered leaderboard view from aggregate rows.
//
// The total order is fixed: trainers desc, kos desc, rounds desc, extra
// desc, then case-folded player name asc. The final tie-break makes the
// order fully deterministic across repeated reads.
package ranking

import (
	"sort"
	"strings"
	"time"

	"github.com/pokearena/scoresync/internal/domain/model"
)

// Row is one unranked aggregate contribution.
type Row struct {
	Player string
	model.Counters
	Team      string
	UpdatedAt time.Time
}

// Entry is one ranked leaderboard line.
type Entry struct {
	Rank   int    `json:"rank"`
	Player string `json:"player"`
	model.Counters
	Team string `json:"team,omitempty"`
}

// Merge groups rows from one or more identity schemes by case-folded
// display name and sums their counters. Distinct identities sharing a
// display name collapse into a single row; the merge is lossy on purpose
// and the most recently updated team string wins.
func Merge(groups ...[]Row) []Row {
	type acc struct {
		row   Row
		index int
	}
	byName := make(map[string]*acc)
	order := 0
	for _, rows := range groups {
		for _, r := range rows {
			key := strings.ToLower(r.Player)
			a, ok := byName[key]
			if !ok {
				byName[key] = &acc{row: r, index: order}
				order++
				continue
			}
			a.row.Counters = a.row.Counters.Add(r.Counters)
			if r.UpdatedAt.After(a.row.UpdatedAt) {
				a.row.UpdatedAt = r.UpdatedAt
				a.row.Player = r.Player
				if r.Team != "" {
					a.row.Team = r.Team
				}
			}
		}
	}
	merged := make([]Row, 0, len(byName))
	for _, a := range byName {
		merged = append(merged, a.row)
	}
	return merged
}

// Rank sorts rows by the fixed total order and assigns 1-based ranks.
// Never mutates its input.
func Rank(rows []Row) []Entry {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})

	entries := make([]Entry, len(sorted))
	for i, r := range sorted {
		entries[i] = Entry{
			Rank:     i + 1,
			Player:   r.Player,
			Counters: r.Counters,
			Team:     r.Team,
		}
	}
	return entries
}

// less reports whether a ranks strictly before b.
func less(a, b Row) bool {
	if a.Trainers != b.Trainers {
		return a.Trainers > b.Trainers
	}
	if a.KOs != b.KOs {
		return a.KOs > b.KOs
	}
	if a.Rounds != b.Rounds {
		return a.Rounds > b.Rounds
	}
	if a.Extra != b.Extra {
		return a.Extra > b.Extra
	}
	return strings.ToLower(a.Player) < strings.ToLower(b.Player)
}
