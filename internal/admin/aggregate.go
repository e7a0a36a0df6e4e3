package admin

import (
	"github.com/fitlink/fitlink-backend/internal/profiles"
	"github.com/fitlink/fitlink-backend/internal/training"
)

// TrainerStats summarizes one trainer's contracts.
type TrainerStats struct {
	TrainerID     string `json:"trainer_id"`
	TrainerName   string `json:"trainer_name"`
	MemberCount   int    `json:"member_count"`
	TotalSessions int    `json:"total_sessions"`
	UsedSessions  int    `json:"used_sessions"`
}

type Totals struct {
	Trainers      int `json:"trainers"`
	Members       int `json:"members"`
	TotalSessions int `json:"total_sessions"`
	UsedSessions  int `json:"used_sessions"`
}

// Aggregate computes per-trainer statistics in one pass over contracts.
// MemberCount counts distinct members with an active contract; session sums
// include every contract. Contracts of unknown trainers are ignored and
// trainers without contracts report zeros. Output follows trainers' order.
func Aggregate(trainers []profiles.Profile, contracts []training.Contract) ([]TrainerStats, Totals) {
	stats := make([]TrainerStats, len(trainers))
	index := make(map[string]int, len(trainers))
	for i, t := range trainers {
		stats[i] = TrainerStats{TrainerID: t.ID, TrainerName: t.FullName}
		index[t.ID] = i
	}

	type pair struct{ trainer, member string }
	seen := make(map[pair]struct{})
	members := make(map[string]struct{})

	var totals Totals
	for _, c := range contracts {
		i, ok := index[c.TrainerID]
		if !ok {
			continue
		}
		s := &stats[i]
		s.TotalSessions += c.TotalSessions
		s.UsedSessions += c.UsedSessions
		totals.TotalSessions += c.TotalSessions
		totals.UsedSessions += c.UsedSessions

		if !c.IsActive {
			continue
		}
		k := pair{c.TrainerID, c.MemberID}
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			s.MemberCount++
		}
		members[c.MemberID] = struct{}{}
	}

	totals.Trainers = len(trainers)
	totals.Members = len(members)
	return stats, totals
}
