package models

import "time"

const (
	// MaxGroupMembers caps the size of a single security group.
	MaxGroupMembers = 5
	// MaxGroupsPerUser caps how many groups one user may belong to at once.
	MaxGroupsPerUser = 5
)

// SecurityGroup is a small cooperative mining group.
type SecurityGroup struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Code        string    `gorm:"uniqueIndex;not null" json:"code"` // shared with friends to join
	CreatedBy   string    `gorm:"index;not null" json:"created_by"`
	MemberCount int       `gorm:"not null;default:0" json:"member_count"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Members []GroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID"`
}

// GroupMember links one user to one group.
type GroupMember struct {
	ID       string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GroupID  string    `gorm:"not null;uniqueIndex:idx_group_member" json:"group_id"`
	UserID   string    `gorm:"not null;uniqueIndex:idx_group_member;index" json:"user_id"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
}
