package models

import "github.com/uptrace/bun"

// Event carries only the points bookkeeping this service owns. The rest of
// event management (schedule, location, RSVPs) lives in the events service.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	Name          string `bun:"name,notnull" json:"name"`
	PointsTotal   int    `bun:"points_total,notnull" json:"pointsTotal"`
	PointsRemain  int    `bun:"points_remain,notnull" json:"pointsRemain"`
	PointsAwarded int    `bun:"points_awarded,notnull,default:0" json:"pointsAwarded"`
}

type EventGuest struct {
	bun.BaseModel `bun:"table:event_guests"`

	EventID   int64 `bun:"event_id,pk" json:"event_id"`
	UserID    int64 `bun:"user_id,pk" json:"user_id"`
	Confirmed bool  `bun:"confirmed,notnull,default:false" json:"confirmed"`
}

type EventOrganizer struct {
	bun.BaseModel `bun:"table:event_organizers"`

	EventID int64 `bun:"event_id,pk" json:"event_id"`
	UserID  int64 `bun:"user_id,pk" json:"user_id"`
}
