package repo

import (
	"CloudVault/internal/common"
	"CloudVault/internal/dto"
	"CloudVault/model"
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// VersionQuery looks a version up by its storage name and visibility.
type VersionQuery struct {
	Name     string
	IsPublic bool
}

// VersionRepository persists file version metadata.
type VersionRepository interface {
	GetOne(ctx context.Context, id string) (*model.FileVersion, error)
	GetOneBy(ctx context.Context, q VersionQuery) (*model.FileVersion, error)
	// GetOneByPath finds the live version whose recorded locator is path.
	GetOneByPath(ctx context.Context, path string) (*model.FileVersion, error)
	// Save inserts or fully updates v.
	Save(ctx context.Context, v *model.FileVersion) error
	// Delete removes the row and returns what was deleted.
	Delete(ctx context.Context, id string) (*model.FileVersion, error)
	List(ctx context.Context, c dto.Criteria) (*dto.Page, error)
}

type GormVersionRepository struct {
	db *gorm.DB
}

func NewGormVersionRepository(db *gorm.DB) *GormVersionRepository {
	return &GormVersionRepository{db: db}
}

// translate maps gorm errors onto the shared taxonomy. TranslateError must be
// enabled on the connection for ErrDuplicatedKey to show up.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: file version", common.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: name already used for this visibility", common.ErrConflict)
	}
	return fmt.Errorf("file version repository: %w", err)
}

func (r *GormVersionRepository) GetOne(ctx context.Context, id string) (*model.FileVersion, error) {
	var v model.FileVersion
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *GormVersionRepository) GetOneBy(ctx context.Context, q VersionQuery) (*model.FileVersion, error) {
	var v model.FileVersion
	err := r.db.WithContext(ctx).
		Where("name = ? AND is_public = ?", q.Name, q.IsPublic).
		First(&v).Error
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *GormVersionRepository) GetOneByPath(ctx context.Context, path string) (*model.FileVersion, error) {
	var v model.FileVersion
	err := r.db.WithContext(ctx).
		Where("path = ?", path).
		Order("created_at").
		First(&v).Error
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// Save creates v or overwrites every column but created_at. gorm's own Save
// falls back to an upsert that MySQL would apply to any unique key.
func (r *GormVersionRepository) Save(ctx context.Context, v *model.FileVersion) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.FileVersion{}).Where("id = ?", v.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return tx.Create(v).Error
		}
		return tx.Model(v).Select("*").Omit("id", "created_at").Updates(v).Error
	})
	return translate(err)
}

func (r *GormVersionRepository) Delete(ctx context.Context, id string) (*model.FileVersion, error) {
	var deleted model.FileVersion
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&deleted).Error; err != nil {
			return err
		}
		return tx.Delete(&model.FileVersion{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &deleted, nil
}

var sortableColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"name":          "name",
	"original_name": "original_name",
	"size":          "size",
}

func (r *GormVersionRepository) List(ctx context.Context, c dto.Criteria) (*dto.Page, error) {
	page := c.Page
	if page <= 0 {
		page = 1
	}
	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := r.db.WithContext(ctx).Model(&model.FileVersion{})
	if c.IsPublic != nil {
		query = query.Where("is_public = ?", *c.IsPublic)
	}
	if search := strings.TrimSpace(c.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("name LIKE ? OR original_name LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, translate(err)
	}

	order := "created_at DESC"
	if column, ok := sortableColumns[c.OrderBy]; ok {
		order = column
		if c.OrderDesc {
			order += " DESC"
		}
	}

	items := make([]model.FileVersion, 0)
	err := query.Order(order).Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, translate(err)
	}

	lastPage := int((total + int64(pageSize) - 1) / int64(pageSize))
	if lastPage < 1 {
		lastPage = 1
	}
	return &dto.Page{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		LastPage: lastPage,
	}, nil
}
