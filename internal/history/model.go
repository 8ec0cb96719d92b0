package history

import "time"

// LiveSession is one recorded live session of a puzzle room.
type LiveSession struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	PuzzleID      string     `gorm:"type:varchar(128);index:idx_live_puzzle_started;not null" json:"puzzleId"`
	BroadcasterID string     `gorm:"type:varchar(64);not null" json:"broadcasterId"`
	Broadcaster   string     `gorm:"type:varchar(100)" json:"broadcaster"`
	UserID        string     `gorm:"type:varchar(64);index" json:"userId,omitempty"`
	InstanceID    string     `gorm:"type:varchar(100)" json:"instanceId,omitempty"`
	StartedAt     time.Time  `gorm:"index:idx_live_puzzle_started;not null" json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	Reason        string     `gorm:"type:varchar(20)" json:"reason,omitempty"`
	Updates       int        `gorm:"default:0" json:"updates"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"-"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"-"`
}

// TableName specifies the table name for LiveSession.
func (LiveSession) TableName() string {
	return "live_sessions"
}

// Duration returns how long the session lasted, or zero while it is open.
func (s *LiveSession) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}
