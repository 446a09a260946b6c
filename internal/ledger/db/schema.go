package db

import (
	"context"

	"campus-loyalty/internal/models"

	"github.com/uptrace/bun"
)

// schemaModels lists every model the ledger persists, in creation order.
var schemaModels = []interface{}{
	(*models.User)(nil),
	(*models.Transaction)(nil),
	(*models.Promotion)(nil),
	(*models.TransactionPromotion)(nil),
	(*models.PromotionUse)(nil),
	(*models.Event)(nil),
	(*models.EventGuest)(nil),
	(*models.EventOrganizer)(nil),
}

// CreateTables creates the ledger schema from the bun models. Production
// deployments run the SQL migrations instead; this path backs the SQLite
// test databases and local bootstrap.
func CreateTables(ctx context.Context, bunDB *bun.DB) error {
	for _, model := range schemaModels {
		_, err := bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}
