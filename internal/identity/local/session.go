package local

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

type session struct {
	p     *Provider
	token string
}

// load returns the live session row and its user. A revoked session or a
// deleted user reports identity.ErrNoSession.
func (s *session) load(ctx context.Context) (*Claims, *User, error) {
	claims, err := s.p.tokens.parse(s.token, false)
	if err != nil {
		return nil, nil, err
	}

	var sess Session
	err = s.p.db.WithContext(ctx).First(&sess, "session_id = ? AND user_id = ?", claims.SessionID, claims.Subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, identity.ErrNoSession
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find session: %w", err)
	}

	var user User
	err = s.p.db.WithContext(ctx).First(&user, "user_id = ?", claims.Subject).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, identity.ErrNoSession
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	return claims, &user, nil
}

func (s *session) CurrentSession(ctx context.Context) (*identity.Session, error) {
	if s.token == "" {
		return nil, nil
	}
	claims, user, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return &identity.Session{
		AccessToken: s.token,
		ExpiresAt:   claims.ExpiresAt.Time,
		User:        user.toIdentity(),
	}, nil
}

func (s *session) CurrentUser(ctx context.Context) (*identity.User, error) {
	if s.token == "" {
		return nil, identity.ErrNoSession
	}
	_, user, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	u := user.toIdentity()
	return &u, nil
}

func (s *session) Subscribe(handler func(identity.Event)) identity.Subscription {
	var userID string
	if claims, err := s.p.tokens.parse(s.token, false); err == nil {
		userID = claims.Subject
	}
	return s.p.broker.Subscribe(userID, handler)
}

func (s *session) UpdateUserMetadata(ctx context.Context, patch identity.Metadata) error {
	claims, err := s.p.tokens.parse(s.token, false)
	if err != nil {
		return err
	}

	return s.p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "user_id = ?", claims.Subject).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return identity.ErrNoSession
			}
			return fmt.Errorf("find user: %w", err)
		}

		md := fromHstore(user.Metadata)
		if md == nil {
			md = identity.Metadata{}
		}
		for k, v := range patch {
			md[k] = v
		}
		return tx.Model(&user).Update("metadata", toHstore(md)).Error
	})
}
