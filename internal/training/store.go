package training

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store queries contracts and schedules.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ActiveMemberIDs returns the distinct members holding an active contract
// with trainerID.
func (s *Store) ActiveMemberIDs(ctx context.Context, trainerID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&Contract{}).
		Where("trainer_id = ? AND is_active = ?", trainerID, true).
		Distinct().
		Pluck("member_id", &ids).Error
	return ids, err
}

// ActiveContracts returns the active contracts of trainerID.
func (s *Store) ActiveContracts(ctx context.Context, trainerID string) ([]Contract, error) {
	var out []Contract
	err := s.db.WithContext(ctx).
		Where("trainer_id = ? AND is_active = ?", trainerID, true).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// AllContracts returns every contract, active or not.
func (s *Store) AllContracts(ctx context.Context) ([]Contract, error) {
	var out []Contract
	err := s.db.WithContext(ctx).Find(&out).Error
	return out, err
}

// MemberSchedules returns memberID's sessions starting in [from, to),
// ordered by start time. A zero bound is open.
func (s *Store) MemberSchedules(ctx context.Context, memberID string, from, to time.Time) ([]Schedule, error) {
	q := s.db.WithContext(ctx).Where("member_id = ?", memberID)
	if !from.IsZero() {
		q = q.Where("start_time >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("start_time < ?", to)
	}
	var out []Schedule
	err := q.Order("start_time ASC").Find(&out).Error
	return out, err
}

// CreateContract inserts c.
func (s *Store) CreateContract(ctx context.Context, c *Contract) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create contract %s/%s: %w", c.TrainerID, c.MemberID, err)
	}
	return nil
}
