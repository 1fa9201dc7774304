package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/models"
)

const CollectionName = "ticket_activity"

// Actions recorded by the marketplace.
var Actions = []string{"mint", "list", "cancel", "buy"}

// NewCollection describes the ticket_activity collection.
func NewCollection() *core.Collection {
	collection := core.NewBaseCollection(CollectionName)
	collection.Fields.Add(
		&core.SelectField{Name: "action", Required: true, MaxSelect: 1, Values: Actions},
		&core.TextField{Name: "ticket_id", Required: true, Max: 80},
		&core.TextField{Name: "account", Required: true, Max: 42},
		&core.TextField{Name: "price", Max: 80},
		&core.TextField{Name: "mode", Max: 20},
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	)
	collection.AddIndex("idx_ticket_activity_account", false, "account, created", "")
	return collection
}

// Journal stores successful marketplace actions in PocketBase.
type Journal struct {
	app core.App
}

func NewJournal(app core.App) *Journal {
	return &Journal{app: app}
}

func (j *Journal) Record(ctx context.Context, activity models.Activity) error {
	collection, err := j.app.FindCollectionByNameOrId(CollectionName)
	if err != nil {
		return fmt.Errorf("find %s collection: %w", CollectionName, err)
	}

	record := core.NewRecord(collection)
	record.Set("action", activity.Action)
	record.Set("ticket_id", activity.TicketID)
	record.Set("account", strings.ToLower(activity.Account))
	record.Set("price", activity.Price)
	record.Set("mode", activity.Mode)

	if err := j.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save activity: %w", err)
	}
	return nil
}

// Recent returns the newest activity entries, for one account when account
// is not empty.
func (j *Journal) Recent(_ context.Context, account string, limit int) ([]models.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	filter := "id != ''"
	params := dbx.Params{}
	if account != "" {
		filter = "account = {:account}"
		params["account"] = strings.ToLower(account)
	}

	records, err := j.app.FindRecordsByFilter(CollectionName, filter, "-created", limit, 0, params)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	out := make([]models.Activity, 0, len(records))
	for _, r := range records {
		out = append(out, models.Activity{
			Action:    r.GetString("action"),
			TicketID:  r.GetString("ticket_id"),
			Account:   r.GetString("account"),
			Price:     r.GetString("price"),
			Mode:      r.GetString("mode"),
			CreatedAt: r.GetDateTime("created").Time(),
		})
	}
	return out, nil
}
