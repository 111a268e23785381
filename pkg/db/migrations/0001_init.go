package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

// Filing records one artifact handled by the FTP drop box. ID is the event ID so
// redelivered events are idempotent.
type Filing struct {
	ID          uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	File        string                      `gorm:"type:text;not null"`
	Action      string                      `gorm:"type:text;not null;index"`
	Folder      string                      `gorm:"type:text;index"`
	Attributes  datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Destination string                      `gorm:"type:text"`
	Size        int64                       `gorm:"type:bigint;not null;default:0"`
	SHA256      string                      `gorm:"type:text"`
	At          time.Time                   `gorm:"type:timestamptz;not null"`
	CreatedAt   time.Time                   `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type Audit struct {
	ID      int64             `gorm:"type:bigserial;primaryKey"`
	Actor   string            `gorm:"type:text;not null"`
	Action  string            `gorm:"type:text;not null"`
	Obj     string            `gorm:"type:text"`
	Details datatypes.JSONMap `gorm:"type:jsonb"`
	At      time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (Audit) TableName() string { return "audit" }

func openGorm(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(
		&Filing{},
		&Audit{},
	)
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&Audit{},
		&Filing{},
	)
}
