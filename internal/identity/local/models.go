package local

import (
	"database/sql"
	"time"

	"github.com/lib/pq/hstore"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

type User struct {
	UserID         string        `gorm:"primaryKey" json:"user_id"`
	Email          string        `gorm:"not null;uniqueIndex" json:"email"`
	HashedPassword string        `gorm:"not null" json:"-"`
	Metadata       hstore.Hstore `gorm:"type:hstore" json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
}

type Session struct {
	SessionID    string    `gorm:"primaryKey" json:"-"`
	UserID       string    `gorm:"not null;index" json:"-"`
	RefreshToken string    `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt    time.Time `gorm:"not null"`
	CreatedAt    time.Time
}

func (Session) TableName() string { return "app_auth.sessions" }
func (User) TableName() string    { return "app_auth.users" }

func (u User) toIdentity() identity.User {
	return identity.User{ID: u.UserID, Email: u.Email, Metadata: fromHstore(u.Metadata)}
}

func toHstore(md identity.Metadata) hstore.Hstore {
	h := hstore.Hstore{Map: make(map[string]sql.NullString, len(md))}
	for k, v := range md {
		h.Map[k] = sql.NullString{String: v, Valid: true}
	}
	return h
}

func fromHstore(h hstore.Hstore) identity.Metadata {
	if len(h.Map) == 0 {
		return nil
	}
	md := make(identity.Metadata, len(h.Map))
	for k, v := range h.Map {
		if v.Valid {
			md[k] = v.String
		}
	}
	return md
}
