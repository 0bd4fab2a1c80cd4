package store

import (
	"time"

	"gorm.io/datatypes"
)

// DocumentModel is one partitioned item in Postgres. The composite primary
// key (type, id) keeps each partition's ids independent.
type DocumentModel struct {
	Type      string         `gorm:"primaryKey;size:16"`
	ID        string         `gorm:"primaryKey"`
	Body      datatypes.JSON `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// TableName pins the table name regardless of naming strategy.
func (DocumentModel) TableName() string {
	return "documents"
}

func documentToModel(item Item, now time.Time) DocumentModel {
	return DocumentModel{
		Type:      item.Type,
		ID:        item.ID,
		Body:      datatypes.JSON(item.Body),
		UpdatedAt: now,
	}
}

func documentFromModel(m DocumentModel) Item {
	return Item{
		Type: m.Type,
		ID:   m.ID,
		Body: []byte(m.Body),
	}
}
