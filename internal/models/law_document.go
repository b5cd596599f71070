package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LawDocument 관리자가 등록한 법령 자료
type LawDocument struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	FileName   string     `gorm:"size:255;not null" json:"file_name"`
	StorageURL string     `gorm:"size:1024;not null" json:"storage_url"`
	Version    int        `gorm:"not null" json:"version"`
	IsActive   bool       `gorm:"not null;index" json:"is_active"`
	UploadedBy string     `gorm:"size:64;not null" json:"uploaded_by"`
	Chunks     []LawChunk `gorm:"foreignKey:DocumentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// DB 컬럼 아님, 조회 시 채움
	ChunkCount int `gorm:"-" json:"chunk_count"`
}

func (d *LawDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// LawChunk 검색 단위로 잘라낸 법령 본문
type LawChunk struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	DocumentID string `gorm:"size:36;not null;index" json:"document_id"`
	ChunkIndex int    `gorm:"not null" json:"chunk_index"`
	Content    string `gorm:"type:text;not null" json:"content"`
}
