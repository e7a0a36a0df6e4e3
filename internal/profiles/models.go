package profiles

import "time"

// Profile is the authoritative per-user record; its Role is the source of
// truth the session metadata only caches.
type Profile struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Role        string    `gorm:"not null;index" json:"role"`
	FullName    string    `gorm:"not null" json:"full_name"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Profile) TableName() string { return "public.profiles" }
