package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fitlink/fitlink-backend/internal/roles"
)

// CSV contracts
// profiles.csv:  id,role,full_name,phone_number
// contracts.csv: trainer_id,member_id,total_sessions,used_sessions,is_active
// ids are UUIDs of existing auth users; is_active defaults to true.

type ProfileCSV struct {
	ID          uuid.UUID
	Role        roles.Role
	FullName    string
	PhoneNumber string
}

type ContractCSV struct {
	TrainerID     uuid.UUID
	MemberID      uuid.UUID
	TotalSessions int
	UsedSessions  int
	IsActive      bool
}

// csvTable reads a header row and yields each record as a column lookup.
func csvTable(src io.Reader, required []string, each func(line int, get func(string) string) error) error {
	r := csv.NewReader(bufio.NewReader(src))
	r.TrimLeadingSpace = true

	headers, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range required {
		if _, ok := idx[k]; !ok {
			return fmt.Errorf("missing required column: %s", k)
		}
	}

	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv read: %w", err)
		}
		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if err := each(line, get); err != nil {
			return err
		}
	}
}

func loadProfiles(src io.Reader) ([]ProfileCSV, error) {
	var out []ProfileCSV
	seen := map[uuid.UUID]struct{}{}
	err := csvTable(src, []string{"id", "role", "full_name"}, func(line int, get func(string) string) error {
		id, err := uuid.Parse(get("id"))
		if err != nil {
			return fmt.Errorf("row %d: invalid id: %w", line, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("row %d: duplicate id %s", line, id)
		}
		seen[id] = struct{}{}

		role, ok := roles.Parse(get("role"))
		if !ok {
			return fmt.Errorf("row %d: unknown role %q", line, get("role"))
		}
		name := get("full_name")
		if name == "" {
			return fmt.Errorf("row %d: full_name is empty", line)
		}
		out = append(out, ProfileCSV{ID: id, Role: role, FullName: name, PhoneNumber: get("phone_number")})
		return nil
	})
	return out, err
}

func loadContracts(src io.Reader) ([]ContractCSV, error) {
	var out []ContractCSV
	err := csvTable(src, []string{"trainer_id", "member_id", "total_sessions"}, func(line int, get func(string) string) error {
		var c ContractCSV
		var err error
		if c.TrainerID, err = uuid.Parse(get("trainer_id")); err != nil {
			return fmt.Errorf("row %d: invalid trainer_id: %w", line, err)
		}
		if c.MemberID, err = uuid.Parse(get("member_id")); err != nil {
			return fmt.Errorf("row %d: invalid member_id: %w", line, err)
		}
		if c.TotalSessions, err = strconv.Atoi(get("total_sessions")); err != nil || c.TotalSessions < 0 {
			return fmt.Errorf("row %d: total_sessions must be a non-negative integer", line)
		}
		if v := get("used_sessions"); v != "" {
			if c.UsedSessions, err = strconv.Atoi(v); err != nil || c.UsedSessions < 0 {
				return fmt.Errorf("row %d: used_sessions must be a non-negative integer", line)
			}
		}
		if c.UsedSessions > c.TotalSessions {
			return fmt.Errorf("row %d: used_sessions exceeds total_sessions", line)
		}
		c.IsActive = true
		if v := get("is_active"); v != "" {
			if c.IsActive, err = strconv.ParseBool(v); err != nil {
				return fmt.Errorf("row %d: invalid is_active: %w", line, err)
			}
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// validateRefs checks that contracts seeded alongside profiles point at a
// trainer and a member. Ids not in the profile file are left to the database.
func validateRefs(ps []ProfileCSV, cs []ContractCSV) error {
	byID := make(map[uuid.UUID]roles.Role, len(ps))
	for _, p := range ps {
		byID[p.ID] = p.Role
	}
	for i, c := range cs {
		if r, ok := byID[c.TrainerID]; ok && r != roles.Trainer {
			return fmt.Errorf("contract %d: %s is a %s, not a trainer", i+1, c.TrainerID, r)
		}
		if r, ok := byID[c.MemberID]; ok && r != roles.Member {
			return fmt.Errorf("contract %d: %s is a %s, not a member", i+1, c.MemberID, r)
		}
	}
	return nil
}
