package models

import (
	"time"
)

// KVItem is the single table backing the SQL key-value store
type KVItem struct {
	PK        string    `gorm:"primaryKey;column:pk;type:varchar(255)"`
	SK        string    `gorm:"primaryKey;column:sk;type:varchar(255)"`
	Data      string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the KVItem model
func (KVItem) TableName() string {
	return "kv_items"
}
