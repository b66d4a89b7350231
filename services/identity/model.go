package identity

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	RoleShopper  = "shopper"
	RoleMediator = "mediator"
	RoleAgency   = "agency"
	RoleBrand    = "brand"
	RoleOps      = "ops"
	RoleAdmin    = "admin"
)

// Roles is stored as a postgres text[] and as its literal form elsewhere.
type Roles []string

func (Roles) GormDataType() string {
	return "text"
}

func (Roles) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (r Roles) Value() (driver.Value, error) {
	return pq.StringArray(r).Value()
}

func (r *Roles) Scan(src any) error {
	return (*pq.StringArray)(r).Scan(src)
}

type User struct {
	ID           string         `gorm:"column:id;primaryKey;size:64"`
	Name         string         `gorm:"column:name;size:128"`
	Roles        Roles          `gorm:"column:roles"`
	MediatorCode string         `gorm:"column:mediator_code;size:64;index"`
	AgencyCode   string         `gorm:"column:agency_code;size:64;index"`
	BrandCode    string         `gorm:"column:brand_code;size:64;index"`
	ParentCode   string         `gorm:"column:parent_code;size:64"`
	Suspended    bool           `gorm:"column:suspended;not null;default:false"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (u *User) normalizedRoles() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			out = append(out, r)
		}
	}
	return out
}
