package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Role is the ordered role hierarchy. Comparisons go through Rank so the
// ordering lives in exactly one place.
type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

var roleRank = map[Role]int{
	RoleRegular:   0,
	RoleCashier:   1,
	RoleManager:   2,
	RoleSuperuser: 3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r sits at or above min in the hierarchy.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && roleRank[r] >= roleRank[min]
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	Utorid     string    `bun:"utorid,notnull,unique" json:"utorid"`
	Name       string    `bun:"name,nullzero" json:"name"`
	Role       Role      `bun:"role,notnull" json:"role"`
	Points     int       `bun:"points,notnull,default:0" json:"points"`
	Verified   bool      `bun:"verified,notnull,default:false" json:"verified"`
	Suspicious bool      `bun:"suspicious,notnull,default:false" json:"suspicious"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}
