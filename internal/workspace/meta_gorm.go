package workspace

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-backend/internal/platform/apierr"
)

type gormMetaRepo struct {
	db *gorm.DB
}

// NewGormMetaRepo backs MetaRepo with the workspace registry's Postgres
// bookkeeping table, following the teacher's repo-over-gorm pattern
// (internal/data/repos/materials/materialfile.go).
func NewGormMetaRepo(db *gorm.DB) MetaRepo {
	return &gormMetaRepo{db: db}
}

func (r *gormMetaRepo) Upsert(m *Meta) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "schema_version", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return apierr.New(apierr.CategoryStoreError, "upsert workspace meta", err)
	}
	return nil
}

func (r *gormMetaRepo) Get(workspaceID string) (*Meta, error) {
	var m Meta
	if err := r.db.Where("workspace_id = ?", workspaceID).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierr.New(apierr.CategoryNotFound, "workspace meta not found", err)
		}
		return nil, apierr.New(apierr.CategoryStoreError, "get workspace meta", err)
	}
	return &m, nil
}

func (r *gormMetaRepo) List() ([]*Meta, error) {
	var out []*Meta
	if err := r.db.Find(&out).Error; err != nil {
		return nil, apierr.New(apierr.CategoryStoreError, "list workspace meta", err)
	}
	return out, nil
}
