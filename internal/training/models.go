package training

import "time"

// Contract is a PT package sold by a trainer to a member.
type Contract struct {
	ID            string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TrainerID     string    `gorm:"type:uuid;not null;index" json:"trainer_id"`
	MemberID      string    `gorm:"type:uuid;not null;index" json:"member_id"`
	TotalSessions int       `gorm:"not null;default:0" json:"total_sessions"`
	UsedSessions  int       `gorm:"not null;default:0" json:"used_sessions"`
	IsActive      bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Contract) TableName() string { return "public.pt_contracts" }

// Remaining returns the sessions still available on the contract.
func (c Contract) Remaining() int {
	if c.UsedSessions >= c.TotalSessions {
		return 0
	}
	return c.TotalSessions - c.UsedSessions
}

// Schedule is one booked session between a trainer and a member.
type Schedule struct {
	ID        string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TrainerID string    `gorm:"type:uuid;not null;index" json:"trainer_id"`
	MemberID  string    `gorm:"type:uuid;not null;index" json:"member_id"`
	StartTime time.Time `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	Status    string    `gorm:"not null;default:'scheduled'" json:"status"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Schedule) TableName() string { return "public.schedules" }
