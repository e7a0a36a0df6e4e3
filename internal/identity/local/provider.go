// Package local implements identity.Provider on the service's own Postgres
// database. It is meant for development and tests without a Supabase project.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fitlink/fitlink-backend/internal/db"
	"github.com/fitlink/fitlink-backend/internal/identity"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

var (
	ErrMissingJWTSecret = errors.New("local auth: JWT secret is required")
	ErrNoDatabase       = errors.New("local auth: database not connected")
)

func init() {
	identity.RegisterProvider("local", func(opts identity.Options) (identity.Provider, error) {
		if db.DB == nil {
			return nil, ErrNoDatabase
		}
		return New(db.DB, opts)
	})
}

// Provider stores users and sessions in the app_auth schema.
type Provider struct {
	db     *gorm.DB
	tokens tokenIssuer
	broker *identity.Broker
}

// New creates a provider on d.
func New(d *gorm.DB, opts identity.Options) (*Provider, error) {
	if opts.LocalJWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	broker := opts.Broker
	if broker == nil {
		broker = identity.NewBroker()
	}
	return &Provider{
		db:     d,
		tokens: tokenIssuer{secret: []byte(opts.LocalJWTSecret), ttl: accessTTL, now: time.Now},
		broker: broker,
	}, nil
}

func (p *Provider) Name() string { return "local" }

func (p *Provider) Bind(accessToken string) identity.AuthSession {
	return &session{p: p, token: accessToken}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	var user User
	err := p.db.WithContext(ctx).First(&user, "email = ?", normalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, identity.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}

	sess := Session{
		SessionID:    uuid.NewString(),
		UserID:       user.UserID,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    p.tokens.now().Add(refreshTTL),
	}
	if err := p.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return p.sessionFor(user, sess)
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata identity.Metadata) (*identity.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, identity.ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		UserID:         uuid.NewString(),
		Email:          email,
		HashedPassword: string(hashed),
		Metadata:       toHstore(metadata),
	}
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&user)
	if res.Error != nil {
		return nil, fmt.Errorf("create user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, identity.ErrUserExists
	}

	out := user.toIdentity()
	return &out, nil
}

// Refresh rotates the refresh token and issues a new access token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if refreshToken == "" {
		return nil, identity.ErrNoSession
	}

	var (
		user User
		sess Session
	)
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&sess, "refresh_token = ?", refreshToken).Error; err != nil {
			return err
		}
		if !p.tokens.now().Before(sess.ExpiresAt) {
			return identity.ErrSessionExpired
		}
		if err := tx.First(&user, "user_id = ?", sess.UserID).Error; err != nil {
			return err
		}
		sess.RefreshToken = uuid.NewString()
		sess.ExpiresAt = p.tokens.now().Add(refreshTTL)
		return tx.Save(&sess).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, identity.ErrSessionExpired):
		return nil, identity.ErrNoSession
	case err != nil:
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return p.sessionFor(user, sess)
}

// SignOut deletes every session of the user behind accessToken, expired or
// not. The token's own session must still exist.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.tokens.parse(accessToken, true)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var own Session
		err := tx.Select("session_id").Where("session_id = ? AND user_id = ?", claims.SessionID, claims.Subject).Take(&own).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return identity.ErrNoSession
		}
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if err := tx.Where("user_id = ?", claims.Subject).Delete(&Session{}).Error; err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		return nil
	})
}

func (p *Provider) sessionFor(user User, sess Session) (*identity.Session, error) {
	access, exp, err := p.tokens.issue(user, sess.SessionID)
	if err != nil {
		return nil, err
	}
	return &identity.Session{
		AccessToken:  access,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    exp,
		User:         user.toIdentity(),
	}, nil
}
