package models

import (
	"mentorhub/src/types"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type User struct {
	ID     uint           `gorm:"primarykey" json:"id"`
	Email  string         `gorm:"uniqueIndex" json:"email,omitempty"`
	Name   string         `json:"name,omitempty"`
	Handle string         `gorm:"index" json:"handle,omitempty"`
	Role   types.UserRole `gorm:"default:'customer'" json:"role,omitempty"`

	types.Timestamps
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Handle == "" {
		u.Handle = slug.Make(u.Name)
	}
	return nil
}
