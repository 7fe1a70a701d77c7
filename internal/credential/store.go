package credential

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store persists encrypted containers and unwraps them on demand.
type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

func NewStore(p Params) *Store {
	return &Store{
		db:    p.DB,
		log:   p.Log.Named("credential"),
		genID: p.GenID,
	}
}

// Save stores the uploaded container as-is. No validation happens here:
// a wrong passphrase or garbage file only surfaces at the first signing
// attempt.
func (s *Store) Save(ctx context.Context, ownerID snowflake.ID, filename string, container []byte, passphrase string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO signing_credentials (id, owner_id, filename, container, passphrase, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id)
		 DO UPDATE SET filename = EXCLUDED.filename,
		               container = EXCLUDED.container,
		               passphrase = EXCLUDED.passphrase,
		               uploaded_at = EXCLUDED.uploaded_at`,
		s.genID.Generate(),
		ownerID,
		filename,
		container,
		passphrase,
		now,
	).Error
}

// Unwrap loads the owner's container and decodes it with the stored
// passphrase. The caller owns the returned Credential and must Close it
// when the signing call finishes.
func (s *Store) Unwrap(ctx context.Context, ownerID snowflake.ID) (*Credential, error) {
	var stored StoredCredential
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Take(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoCredential
		}
		return nil, err
	}

	cred, err := Decode(stored.Container, stored.Passphrase)
	if err != nil {
		s.log.Warn("credential unwrap failed",
			zap.Int64("owner_id", int64(ownerID)),
			zap.Error(err),
		)
		return nil, err
	}
	return cred, nil
}

var Module = fx.Module("credential",
	fx.Provide(NewStore),
)
