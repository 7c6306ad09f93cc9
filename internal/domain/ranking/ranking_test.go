package ranking_test

import (
	"testing"
	"time"

	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

func row(player string, trainers, kos, rounds, extra int64) ranking.Row {
	return ranking.Row{
		Player:   player,
		Counters: model.Counters{Rounds: rounds, KOs: kos, Trainers: trainers, Extra: extra},
	}
}

func TestRank(t *testing.T) {
	Convey("Given a fixed set of aggregate rows", t, func() {
		rows := []ranking.Row{
			row("Minh", 0, 5, 7, 0),
			row("Trong", 1, 6, 8, 0),
			row("Lan", 0, 4, 6, 0),
		}

		Convey("Then ordering follows trainers, kos, rounds, extra", func() {
			got := ranking.Rank(rows)
			So(len(got), ShouldEqual, 3)
			So(got[0].Player, ShouldEqual, "Trong")
			So(got[1].Player, ShouldEqual, "Minh")
			So(got[2].Player, ShouldEqual, "Lan")
			So(got[0].Rank, ShouldEqual, 1)
			So(got[2].Rank, ShouldEqual, 3)
		})

		Convey("Then repeated computations return identical ordering", func() {
			first := ranking.Rank(rows)
			for range 10 {
				So(ranking.Rank(rows), ShouldResemble, first)
			}
		})

		Convey("Then the input slice is not mutated", func() {
			_ = ranking.Rank(rows)
			So(rows[0].Player, ShouldEqual, "Minh")
		})
	})

	Convey("Given rows that tie on every counter", t, func() {
		rows := []ranking.Row{
			row("banette", 1, 2, 3, 0),
			row("Absol", 1, 2, 3, 0),
			row("Zorua", 1, 2, 3, 0),
		}

		Convey("Then the tie breaks by case-folded name ascending", func() {
			got := ranking.Rank(rows)
			So(got[0].Player, ShouldEqual, "Absol")
			So(got[1].Player, ShouldEqual, "banette")
			So(got[2].Player, ShouldEqual, "Zorua")
		})
	})
}

func TestMerge(t *testing.T) {
	Convey("Given rows from two identity schemes", t, func() {
		names := []ranking.Row{
			{Player: "Lan", Counters: model.Counters{Rounds: 6, KOs: 4}, Team: "Lucario", UpdatedAt: time.Unix(100, 0)},
			{Player: "Minh", Counters: model.Counters{Rounds: 5, KOs: 5}},
		}
		devices := []ranking.Row{
			{Player: "lan", Counters: model.Counters{Rounds: 2, KOs: 1, Trainers: 1}, Team: "Jolteon", UpdatedAt: time.Unix(200, 0)},
			{Player: "Trong", Counters: model.Counters{Rounds: 8, KOs: 6}},
		}

		Convey("Then same-name rows are summed case-insensitively", func() {
			merged := ranking.Merge(names, devices)
			So(len(merged), ShouldEqual, 3)

			ranked := ranking.Rank(merged)
			var lan ranking.Entry
			for _, e := range ranked {
				if e.Player == "lan" || e.Player == "Lan" {
					lan = e
				}
			}
			So(lan.Rounds, ShouldEqual, 8)
			So(lan.KOs, ShouldEqual, 5)
			So(lan.Trainers, ShouldEqual, 1)
		})

		Convey("Then the most recently updated team string wins", func() {
			merged := ranking.Merge(names, devices)
			for _, r := range merged {
				if r.Player == "lan" {
					So(r.Team, ShouldEqual, "Jolteon")
				}
			}
		})
	})
}
