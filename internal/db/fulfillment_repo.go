package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"shopmail/internal/types"
)

// FulfillmentRepository reads the replicated fulfillments table.
type FulfillmentRepository struct {
	db DBTX
}

var _ types.FulfillmentRepository = (*FulfillmentRepository)(nil)

func NewFulfillmentRepository(db DBTX) *FulfillmentRepository {
	return &FulfillmentRepository{db: db}
}

// Retrieve fetches one fulfillment. The "items" and "tracking_links"
// relations are JSONB documents on the row.
func (r *FulfillmentRepository) Retrieve(ctx context.Context, id string, opts types.RetrieveOptions) (*types.Fulfillment, error) {
	withItems := hasRelation(opts.Relations, "items")
	withLinks := hasRelation(opts.Relations, "tracking_links")

	columns := `id, order_id, provider_id, shipped_at, data, metadata`
	if withItems {
		columns += ", items"
	}
	if withLinks {
		columns += ", tracking_links"
	}

	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM fulfillments WHERE id = $1`, columns), id)

	var f types.Fulfillment
	var itemsDoc, linksDoc []byte

	dest := []any{&f.ID, &f.OrderID, &f.ProviderID, &f.ShippedAt, &f.Data, &f.Metadata}
	if withItems {
		dest = append(dest, &itemsDoc)
	}
	if withLinks {
		dest = append(dest, &linksDoc)
	}

	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundFulfillment, "fulfillment not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve fulfillment", err)
	}

	if len(itemsDoc) > 0 {
		if err := json.Unmarshal(itemsDoc, &f.Items); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt fulfillment items document", err)
		}
	}
	if len(linksDoc) > 0 {
		if err := json.Unmarshal(linksDoc, &f.TrackingLinks); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt tracking links document", err)
		}
	}
	return &f, nil
}
