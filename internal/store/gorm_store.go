package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"glassmon/internal/model"
)

// DefectModel maps the shared defects table. The table is owned by the
// wider product; only the columns the tagger touches are declared.
type DefectModel struct {
	ID             string    `gorm:"primaryKey"`
	DetectedAt     time.Time `gorm:"not null;index"`
	ImageURL       *string
	TagNumber      *int64 `gorm:"uniqueIndex"`
	TaggedImageURL *string
}

func (DefectModel) TableName() string { return "defects" }

type GormOptions struct {
	// AutoMigrate creates the table when it does not exist. Meant for local
	// development; production schemas are managed by the store owner.
	AutoMigrate bool
}

// GormStore implements DefectStore on Postgres.
type GormStore struct {
	db *gorm.DB

	migrate  bool
	mu       sync.Mutex
	migrated bool
}

// NewGormStore opens the pool without connecting. Connection errors surface
// from the first query, so a database that is down at startup is picked up
// again once it returns.

func NewGormStore(dsn string, opts GormOptions) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:               gormLog,
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return NewGormStoreWithDB(db, opts)
}

func NewGormStoreWithDB(db *gorm.DB, opts GormOptions) (*GormStore, error) {
	return &GormStore{db: db, migrate: opts.AutoMigrate}, nil
}

// ensureSchema runs AutoMigrate once it succeeds. Until then every list
// retries it.
func (s *GormStore) ensureSchema(ctx context.Context) error {
	if !s.migrate {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.migrated {
		return nil
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&DefectModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	s.migrated = true
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) ListUntagged(ctx context.Context, limit int) ([]model.Defect, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var rows []DefectModel
	q := s.db.WithContext(ctx).
		Where("tag_number IS NULL").
		Order("detected_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list untagged: %w", err)
	}
	out := make([]model.Defect, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDomainDefect(r))
	}
	return out, nil
}

func (s *GormStore) MaxTagNumber(ctx context.Context) (int64, error) {
	var maxTag int64
	err := s.db.WithContext(ctx).
		Model(&DefectModel{}).
		Select("COALESCE(MAX(tag_number), 0)").
		Scan(&maxTag).Error
	if err != nil {
		return 0, fmt.Errorf("max tag number: %w", err)
	}
	return maxTag, nil
}

func (s *GormStore) UpdateTag(ctx context.Context, id string, tag int64, taggedImageURL *string) error {
	res := s.db.WithContext(ctx).
		Model(&DefectModel{}).
		Where("id = ? AND tag_number IS NULL", id).
		Updates(map[string]any{
			"tag_number":       tag,
			"tagged_image_url": taggedImageURL,
		})
	if res.Error != nil {
		return fmt.Errorf("update tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&DefectModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("check defect: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrAlreadyTagged
	}
	return nil
}

func toDomainDefect(r DefectModel) model.Defect {
	return model.Defect{
		ID:             r.ID,
		DetectedAt:     r.DetectedAt,
		ImageURL:       r.ImageURL,
		TagNumber:      r.TagNumber,
		TaggedImageURL: r.TaggedImageURL,
	}
}
