package models

import (
	"time"
)

// Document is an uploaded PDF tracked by the CRUD layer.
// The retrieval core only reads ID, Title and FilePath; it never mutates the row.
type Document struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string    `json:"title" gorm:"type:text;not null"`
	FilePath  string    `json:"file_path" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// DocumentCreate carries the fields needed to register an upload.
type DocumentCreate struct {
	Title    string `json:"title"`
	FilePath string `json:"file_path"`
}
