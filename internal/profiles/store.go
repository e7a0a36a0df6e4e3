package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/fitlink/fitlink-backend/internal/roles"
)

var ErrProfileNotFound = errors.New("profile not found")

const defaultLookupTimeout = 5 * time.Second

// Store reads and writes profiles.
type Store struct {
	db    *gorm.DB
	group singleflight.Group

	// queryRole runs the shared lookup; tests replace it.
	queryRole     func(ctx context.Context, userID string) (roles.Role, error)
	lookupTimeout time.Duration
}

func NewStore(db *gorm.DB) *Store {
	s := &Store{db: db, lookupTimeout: defaultLookupTimeout}
	s.queryRole = s.selectRole
	return s
}

// ProfileRole returns the stored role for userID. Concurrent calls for the
// same user share one query, which runs detached from any single caller's
// cancellation under its own timeout; each caller still returns as soon as
// its own ctx ends. A profile with an empty role yields roles.Unresolved and
// no error.
func (s *Store) ProfileRole(ctx context.Context, userID string) (roles.Role, error) {
	ch := s.group.DoChan(userID, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lookupTimeout)
		defer cancel()
		return s.queryRole(qctx, userID)
	})
	select {
	case res := <-ch:
		role, _ := res.Val.(roles.Role)
		return role, res.Err
	case <-ctx.Done():
		return roles.Unresolved, ctx.Err()
	}
}

func (s *Store) selectRole(ctx context.Context, userID string) (roles.Role, error) {
	var p Profile
	err := s.db.WithContext(ctx).Select("role").First(&p, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return roles.Unresolved, ErrProfileNotFound
	}
	if err != nil {
		return roles.Unresolved, fmt.Errorf("profile role %s: %w", userID, err)
	}
	return roles.Role(p.Role), nil
}

// Get loads a full profile.
func (s *Store) Get(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts p.
func (s *Store) Create(ctx context.Context, p *Profile) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	return nil
}

// ListByRole returns every profile holding role, newest first.
func (s *Store) ListByRole(ctx context.Context, role roles.Role) ([]Profile, error) {
	var out []Profile
	err := s.db.WithContext(ctx).
		Where("role = ?", string(role)).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ListByIDs returns the profiles among ids that hold role, newest first.
func (s *Store) ListByIDs(ctx context.Context, ids []string, role roles.Role) ([]Profile, error) {
	if len(ids) == 0 {
		return []Profile{}, nil
	}
	var out []Profile
	err := s.db.WithContext(ctx).
		Where("id IN ? AND role = ?", ids, string(role)).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
