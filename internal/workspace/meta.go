package workspace

import "time"

// Meta is the durable relational record for a workspace's display
// metadata and current schema version — the one piece of state the core
// keeps outside the graph store, since the schema YAML itself is
// filesystem-resident and the evidence graph lives entirely in C5.
type Meta struct {
	WorkspaceID   string `gorm:"type:text;primaryKey"`
	DisplayName   string `gorm:"type:text;not null;default:''"`
	SchemaVersion string `gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time `gorm:"not null;default:now()"`
	UpdatedAt     time.Time `gorm:"not null;default:now()"`
}

func (Meta) TableName() string { return "workspace_meta" }

// MetaRepo persists workspace display metadata and the current schema
// version alongside the filesystem-resident schema documents.
type MetaRepo interface {
	Upsert(m *Meta) error
	Get(workspaceID string) (*Meta, error)
	List() ([]*Meta, error)
}
