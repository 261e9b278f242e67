package model

import (
	"CloudVault/internal/common"
	"strings"
	"time"

	"github.com/google/uuid"
)

type FileVersion struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	Name           string `gorm:"column:name;size:512;not null;uniqueIndex:uk_name_visibility,priority:1" json:"name"`
	OriginalName   string `gorm:"column:original_name;size:512;not null" json:"original_name"`
	IsOriginalName bool   `gorm:"column:is_original_name;not null;default:false" json:"is_original_name"`

	Extension string `gorm:"column:extension;size:32;not null;default:''" json:"extension"`
	MimeType  string `gorm:"column:mime_type;size:255;not null;default:''" json:"mime_type"`
	Size      int64  `gorm:"column:size;not null;default:0" json:"size"`

	Path     string `gorm:"column:path;size:768;not null;default:'';index:idx_path" json:"path"` // <bucket>/<name>
	IsPublic bool   `gorm:"column:is_public;not null;default:false;uniqueIndex:uk_name_visibility,priority:2" json:"is_public"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (FileVersion) TableName() string {
	return "file_version"
}

// NewFileVersion returns an unsaved version with a fresh ID.
func NewFileVersion(originalName string) *FileVersion {
	return &FileVersion{
		ID:           uuid.NewString(),
		OriginalName: strings.TrimSpace(originalName),
	}
}

// SetName derives Name from the isOriginalName flag. With true the name is the
// original name verbatim; with false an existing name is kept and a missing
// one is generated. Names must never parse as a UUID so that lookups by ID and
// by name cannot be confused.
func (v *FileVersion) SetName(isOriginalName bool) error {
	v.IsOriginalName = isOriginalName
	if isOriginalName {
		v.Name = v.OriginalName
	} else if strings.TrimSpace(v.Name) == "" {
		v.Name = generateName(v.OriginalName)
	}
	return ValidateName(v.Name)
}

// ValidateName rejects empty names and names that are valid UUIDs.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return common.ErrInvalidName
	}
	if _, err := uuid.Parse(name); err == nil {
		return common.ErrInvalidName
	}
	return nil
}

func generateName(originalName string) string {
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	clean := strings.TrimSpace(originalName)
	clean = strings.ReplaceAll(clean, "\\", "_")
	if clean == "" {
		return prefix
	}
	return prefix + "_" + clean
}
