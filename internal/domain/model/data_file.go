//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// DataFileType identifies how a data file entered the system.
type DataFileType string

const (
	DataFileTypeDat         DataFileType = "dat"
	DataFileTypeExcelImport DataFileType = "excel_import"
)

// Valid reports whether the data file type is supported.
func (t DataFileType) Valid() bool {
	switch t {
	case DataFileTypeDat, DataFileTypeExcelImport:
		return true
	default:
		return false
	}
}

// DataFile represents a stored data file (.dat source) belonging to a model.
type DataFile struct {
	ID              int64        `json:"id"                          db:"id"`
	ModelID         int64        `json:"model_id"                    db:"model_id"`
	Name            string       `json:"name"                        db:"name"`
	FileContent     string       `json:"file_content"                db:"file_content"`
	FileType        DataFileType `json:"file_type"                   db:"file_type"`
	SourceExcelPath *string      `json:"source_excel_path,omitempty" db:"source_excel_path"`
	CreatedAt       time.Time    `json:"created_at"                  db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"                  db:"updated_at"`
}

// CreateDataFileRequest represents parameters to create a DataFile under a model.
type CreateDataFileRequest struct {
	Name            string       `json:"name"`
	FileContent     string       `json:"file_content"`
	FileType        DataFileType `json:"file_type,omitempty"`
	SourceExcelPath *string      `json:"source_excel_path,omitempty"`
}

// Validate validates CreateDataFileRequest, defaulting the file type to dat.
func (r *CreateDataFileRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errors.New("name is required and cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxModelNameLen {
		return errors.New("name cannot exceed 255 characters")
	}
	if strings.TrimSpace(r.FileContent) == "" {
		return errors.New("file_content is required")
	}
	if r.FileType == "" {
		r.FileType = DataFileTypeDat
	}
	if !r.FileType.Valid() {
		return errors.New("invalid file_type")
	}
	return nil
}

// UpdateDataFileRequest represents partial-update parameters for a DataFile.
// Nil fields are left unchanged.
type UpdateDataFileRequest struct {
	Name        *string `json:"name,omitempty"`
	FileContent *string `json:"file_content,omitempty"`
}

// Validate validates UpdateDataFileRequest.
func (r *UpdateDataFileRequest) Validate() error {
	if r.Name == nil && r.FileContent == nil {
		return errors.New("at least one field must be provided")
	}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return errors.New("name cannot be empty")
		}
		if utf8.RuneCountInString(name) > maxModelNameLen {
			return errors.New("name cannot exceed 255 characters")
		}
	}
	if r.FileContent != nil && strings.TrimSpace(*r.FileContent) == "" {
		return errors.New("file_content cannot be empty")
	}
	return nil
}
