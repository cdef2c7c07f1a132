package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendall-kelly/patriotgo-chat-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on a single SQL table through gorm.
// Postgres is used in deployments and sqlite for local runs and tests.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying gorm connection
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Migrate creates the kv_items table. On postgres the sort key column is
// switched to the "C" collation so ORDER BY follows byte order.
func (s *GormStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&models.KVItem{}); err != nil {
		return fmt.Errorf("failed to migrate kv_items: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`ALTER TABLE kv_items ALTER COLUMN sk TYPE varchar(255) COLLATE "C"`).Error; err != nil {
			return fmt.Errorf("failed to set kv_items.sk collation: %w", err)
		}
	}
	return nil
}

// Get loads one item
func (s *GormStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	var row models.KVItem
	err := s.db.WithContext(ctx).
		Where("pk = ? AND sk = ?", pk, sk).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", pk, sk, err)
	}
	return rowToItem(row), nil
}

// Put writes one item, honouring IfExists / IfNotExists
func (s *GormStore) Put(ctx context.Context, item Item, opts ...PutOption) error {
	o := applyPutOptions(opts)
	row := models.KVItem{
		PK:        item.PK,
		SK:        item.SK,
		Data:      string(item.Data),
		UpdatedAt: time.Now().UTC(),
	}
	db := s.db.WithContext(ctx)

	switch o.condition {
	case conditionNotExists:
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("failed to put %s/%s: %w", item.PK, item.SK, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
	case conditionExists:
		res := db.Model(&models.KVItem{}).
			Where("pk = ? AND sk = ?", item.PK, item.SK).
			Updates(map[string]interface{}{"data": row.Data, "updated_at": row.UpdatedAt})
		if res.Error != nil {
			return fmt.Errorf("failed to put %s/%s: %w", item.PK, item.SK, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
	default:
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pk"}, {Name: "sk"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to put %s/%s: %w", item.PK, item.SK, err)
		}
	}
	return nil
}

// Delete removes one row
func (s *GormStore) Delete(ctx context.Context, pk, sk string) error {
	err := s.db.WithContext(ctx).
		Where("pk = ? AND sk = ?", pk, sk).
		Delete(&models.KVItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", pk, sk, err)
	}
	return nil
}

// Query scans one partition in sort key order
func (s *GormStore) Query(ctx context.Context, q Query) (*Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	limit := q.limit()

	tx := s.db.WithContext(ctx).Model(&models.KVItem{}).Where("pk = ?", q.PK)
	if q.Prefix != "" {
		tx = tx.Where("sk >= ?", q.Prefix)
		if upper := prefixUpperBound(q.Prefix); upper != "" {
			tx = tx.Where("sk < ?", upper)
		}
	}
	if q.Descending {
		if q.From != "" {
			tx = tx.Where("sk <= ?", q.From)
		}
		if q.After != "" {
			tx = tx.Where("sk < ?", q.After)
		}
		tx = tx.Order("sk DESC")
	} else {
		if q.From != "" {
			tx = tx.Where("sk >= ?", q.From)
		}
		if q.After != "" {
			tx = tx.Where("sk > ?", q.After)
		}
		tx = tx.Order("sk ASC")
	}

	var rows []models.KVItem
	if err := tx.Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", q.PK, err)
	}

	page := &Page{Items: make([]Item, 0, len(rows))}
	for _, row := range rows {
		page.Items = append(page.Items, *rowToItem(row))
	}
	if len(rows) == limit {
		page.LastKey = rows[len(rows)-1].SK
	}
	return page, nil
}

// Ping verifies the SQL connection
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the SQL connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

func rowToItem(row models.KVItem) *Item {
	return &Item{
		PK:        row.PK,
		SK:        row.SK,
		Data:      []byte(row.Data),
		UpdatedAt: row.UpdatedAt,
	}
}
