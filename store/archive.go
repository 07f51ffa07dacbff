package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qianlnk/onenight/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GameRecord is the archived outcome of a finished game.
type GameRecord struct {
	ID         uint      `gorm:"primaryKey"`
	SessionID  string    `gorm:"uniqueIndex;size:64"`
	Winner     string    `gorm:"size:16;index"`
	Executed   string    `gorm:"type:text"`
	Winners    string    `gorm:"type:text"`
	Roles      string    `gorm:"type:jsonb"`
	Votes      string    `gorm:"type:jsonb"`
	FinishedAt time.Time `gorm:"index"`
}

// TableName pins the table gorm migrates and queries.
func (GameRecord) TableName() string {
	return "game_records"
}

// Archive stores finished games in Postgres.
type Archive struct {
	db *gorm.DB
}

// NewArchive opens dsn and migrates the records table.
func NewArchive(dsn string) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewArchiveFromDB(db)
}

// NewArchiveFromDB wraps an open connection.
func NewArchiveFromDB(db *gorm.DB) (*Archive, error) {
	if err := db.AutoMigrate(&GameRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate game records: %w", err)
	}
	return &Archive{db: db}, nil
}

// Record upserts the result for sessionID.
func (a *Archive) Record(ctx context.Context, sessionID string, result *models.GameResult, finishedAt time.Time) error {
	rec, err := newGameRecord(sessionID, result, finishedAt)
	if err != nil {
		return err
	}
	err = a.db.WithContext(ctx).
		Where(GameRecord{SessionID: sessionID}).
		Assign(rec).
		FirstOrCreate(&GameRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to archive game %s: %w", sessionID, err)
	}
	return nil
}

// Find loads the archived result for sessionID.
func (a *Archive) Find(ctx context.Context, sessionID string) (*models.GameResult, error) {
	var rec GameRecord
	err := a.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return rec.result()
}

// Close releases the database connection.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newGameRecord(sessionID string, result *models.GameResult, finishedAt time.Time) (GameRecord, error) {
	if result == nil {
		return GameRecord{}, fmt.Errorf("game %s has no result", sessionID)
	}
	roles, err := json.Marshal(result.Roles)
	if err != nil {
		return GameRecord{}, err
	}
	votes, err := json.Marshal(result.Votes)
	if err != nil {
		return GameRecord{}, err
	}
	return GameRecord{
		SessionID:  sessionID,
		Winner:     string(result.Winner),
		Executed:   strings.Join(result.Executed, ","),
		Winners:    strings.Join(result.Winners, ","),
		Roles:      string(roles),
		Votes:      string(votes),
		FinishedAt: finishedAt.UTC(),
	}, nil
}

func (r GameRecord) result() (*models.GameResult, error) {
	out := &models.GameResult{
		Winner:   models.Side(r.Winner),
		Executed: splitList(r.Executed),
		Winners:  splitList(r.Winners),
	}
	if err := json.Unmarshal([]byte(r.Roles), &out.Roles); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(r.Votes), &out.Votes); err != nil {
		return nil, err
	}
	return out, nil
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
