package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"ticket-market/internal/services/journal"
)

func init() {
	m.Register(func(app core.App) error {
		return app.Save(journal.NewCollection())
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId(journal.CollectionName)
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
