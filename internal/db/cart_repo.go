package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"shopmail/internal/types"
)

const cartScalarColumns = `id, email, context, metadata, created_at, updated_at`

// CartRepository reads the replicated carts table. Like orders, the items and
// region relations are denormalized JSONB documents.
type CartRepository struct {
	db DBTX
}

var _ types.CartRepository = (*CartRepository)(nil)

func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// Retrieve fetches one cart. Only the "items" and "region" relations exist on
// the read model; anything else in opts.Relations is ignored.
func (r *CartRepository) Retrieve(ctx context.Context, id string, opts types.RetrieveOptions) (*types.Cart, error) {
	withItems := hasRelation(opts.Relations, "items")
	withRegion := hasRelation(opts.Relations, "region")

	columns := cartScalarColumns
	if withItems {
		columns += ", items"
	}
	if withRegion {
		columns += ", region"
	}

	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM carts WHERE id = $1`, columns), id)

	cart, err := scanCart(row, withItems, withRegion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundCart, "cart not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve cart", err)
	}
	return cart, nil
}

// ListWithEmail returns non-completed carts that captured a customer email
// and were last touched at or before the cutoff. These are the abandonment
// candidates; whether a cart actually converted is the caller's check (via
// the order lookup), since completion lags replication.
func (r *CartRepository) ListWithEmail(ctx context.Context, updatedBefore time.Time) ([]types.Cart, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cartScalarColumns+`, items, region FROM carts
		 WHERE email IS NOT NULL
		   AND completed_at IS NULL
		   AND updated_at <= $1
		 ORDER BY updated_at ASC
		 LIMIT 500`,
		updatedBefore,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list carts", err)
	}
	defer rows.Close()

	var results []types.Cart
	for rows.Next() {
		cart, scanErr := scanCart(rows, true, true)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan cart row", scanErr)
		}
		results = append(results, *cart)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating cart rows", err)
	}
	return results, nil
}

// UpdateMetadata merges the given keys into the cart's metadata document.
// The reminder job uses this to flag which reminder stages have fired.
func (r *CartRepository) UpdateMetadata(ctx context.Context, id string, md types.Metadata) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE carts SET metadata = COALESCE(metadata, '{}'::jsonb) || $1
		 WHERE id = $2`,
		md, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update cart metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCart, "cart not found", nil)
	}
	return nil
}

func scanCart(row pgx.Row, withItems, withRegion bool) (*types.Cart, error) {
	var c types.Cart
	var itemsDoc, regionDoc []byte

	dest := []any{&c.ID, &c.Email, &c.Context, &c.Metadata, &c.CreatedAt, &c.UpdatedAt}
	if withItems {
		dest = append(dest, &itemsDoc)
	}
	if withRegion {
		dest = append(dest, &regionDoc)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if len(itemsDoc) > 0 {
		if err := json.Unmarshal(itemsDoc, &c.Items); err != nil {
			return nil, fmt.Errorf("corrupt items relation document: %w", err)
		}
	}
	if len(regionDoc) > 0 {
		if err := json.Unmarshal(regionDoc, &c.Region); err != nil {
			return nil, fmt.Errorf("corrupt region relation document: %w", err)
		}
	}
	return &c, nil
}

func hasRelation(relations []string, name string) bool {
	for _, rel := range relations {
		if rel == name {
			return true
		}
	}
	return false
}
