// Package credential stores encrypted signing containers and unwraps them
// transiently for a single signing operation.
package credential

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// StoredCredential is the encrypted container exactly as uploaded. The
// private key inside is never persisted unwrapped; decoding happens lazily
// at the first signing attempt, not at upload.
type StoredCredential struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OwnerID    snowflake.ID `gorm:"not null;uniqueIndex:ux_signing_credentials_owner"`
	Filename   string       `gorm:"type:text;not null"`
	Container  []byte       `gorm:"type:bytea;not null"`
	Passphrase string       `gorm:"type:text;not null"`
	UploadedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StoredCredential) TableName() string { return "signing_credentials" }
