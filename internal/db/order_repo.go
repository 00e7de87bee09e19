package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"shopmail/internal/types"
)

// orderScalarColumns are always fetched. The caller's RetrieveOptions.Select
// narrows the replicated JS API's field list; on the read model the scalar row
// is a single fetch either way, so Select is advisory and only Relations
// drives what gets hydrated.
const orderScalarColumns = `id, status, fulfillment_status, payment_status, display_id,
	cart_id, customer_id, email, currency_code, tax_rate, region_id,
	no_notification, canceled_at, created_at, updated_at,
	subtotal, tax_total, shipping_total, discount_total, gift_card_total,
	refunded_total, refundable_amount, paid_total, total, metadata`

// orderRelationColumns maps a relation root ("items.variant.product" roots at
// "items") to its JSONB column. Relations the read model does not carry
// (payments, returns, swaps, ...) are skipped silently: the replication never
// wrote them and the payload contract treats them as absent.
var orderRelationColumns = map[string]string{
	"items":            "items",
	"discounts":        "discounts",
	"gift_cards":       "gift_cards",
	"shipping_methods": "shipping_methods",
	"customer":         "customer",
	"billing_address":  "billing_address",
	"shipping_address": "shipping_address",
	"region":           "region",
}

// OrderRepository reads the replicated orders table. Relation documents are
// stored as denormalized JSONB columns with their nested relations already
// embedded, so "items.variant.product" hydrates from the items column alone.
type OrderRepository struct {
	db DBTX
}

var _ types.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Retrieve fetches one order with the requested relations hydrated.
func (r *OrderRepository) Retrieve(ctx context.Context, id string, opts types.RetrieveOptions) (*types.Order, error) {
	return r.retrieveWhere(ctx, "id = $1", id, opts)
}

// RetrieveByCartID fetches the order created from a cart, if any. Used by the
// reminder jobs to skip carts that already converted.
func (r *OrderRepository) RetrieveByCartID(ctx context.Context, cartID string, opts types.RetrieveOptions) (*types.Order, error) {
	return r.retrieveWhere(ctx, "cart_id = $1", cartID, opts)
}

func (r *OrderRepository) retrieveWhere(ctx context.Context, where, arg string, opts types.RetrieveOptions) (*types.Order, error) {
	roots := relationRoots(opts.Relations)
	columns := orderScalarColumns
	for _, root := range roots {
		columns += ", " + orderRelationColumns[root]
	}

	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM orders WHERE %s`, columns, where), arg)

	order, err := scanOrder(row, roots)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve order", err)
	}
	return order, nil
}

// ListCreatedBefore returns orders created at or before the cutoff, hydrated
// with the relations the follow-up jobs need. Bounded so a backlog cannot
// turn one job run into a full table scan.
func (r *OrderRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]types.Order, error) {
	roots := []string{"customer", "items", "region"}
	columns := orderScalarColumns
	for _, root := range roots {
		columns += ", " + orderRelationColumns[root]
	}

	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM orders
		 WHERE created_at <= $1
		 ORDER BY created_at DESC
		 LIMIT 500`, columns),
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list orders", err)
	}
	defer rows.Close()

	var results []types.Order
	for rows.Next() {
		order, scanErr := scanOrder(rows, roots)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan order row", scanErr)
		}
		results = append(results, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating order rows", err)
	}
	return results, nil
}

// UpdateMetadata merges the given keys into the order's metadata document.
func (r *OrderRepository) UpdateMetadata(ctx context.Context, id string, md types.Metadata) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET metadata = COALESCE(metadata, '{}'::jsonb) || $1, updated_at = NOW()
		 WHERE id = $2`,
		md, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update order metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}
	return nil
}

// scanOrder scans the scalar columns plus the relation columns listed in
// roots, in the same order retrieveWhere appended them.
func scanOrder(row pgx.Row, roots []string) (*types.Order, error) {
	var o types.Order
	relationDocs := make([]*[]byte, len(roots))

	dest := []any{
		&o.ID, &o.Status, &o.FulfillmentStatus, &o.PaymentStatus, &o.DisplayID,
		&o.CartID, &o.CustomerID, &o.Email, &o.CurrencyCode, &o.TaxRate, &o.RegionID,
		&o.NoNotification, &o.CanceledAt, &o.CreatedAt, &o.UpdatedAt,
		&o.Subtotal, &o.TaxTotal, &o.ShippingTotal, &o.DiscountTotal, &o.GiftCardTotal,
		&o.RefundedTotal, &o.RefundableAmount, &o.PaidTotal, &o.Total, &o.Metadata,
	}
	for i := range roots {
		var doc []byte
		relationDocs[i] = &doc
		dest = append(dest, &doc)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for i, root := range roots {
		doc := *relationDocs[i]
		if len(doc) == 0 {
			continue
		}
		var target any
		switch root {
		case "items":
			target = &o.Items
		case "discounts":
			target = &o.Discounts
		case "gift_cards":
			target = &o.GiftCards
		case "shipping_methods":
			target = &o.ShippingMethods
		case "customer":
			target = &o.Customer
		case "billing_address":
			target = &o.BillingAddress
		case "shipping_address":
			target = &o.ShippingAddress
		case "region":
			target = &o.Region
		}
		if err := json.Unmarshal(doc, target); err != nil {
			return nil, fmt.Errorf("corrupt %s relation document: %w", root, err)
		}
	}
	return &o, nil
}

// relationRoots dedupes a relation list down to the known root columns,
// preserving first-seen order so the scan destinations stay aligned.
func relationRoots(relations []string) []string {
	seen := make(map[string]bool, len(relations))
	var roots []string
	for _, rel := range relations {
		root := rel
		if idx := strings.IndexByte(rel, '.'); idx >= 0 {
			root = rel[:idx]
		}
		if _, known := orderRelationColumns[root]; !known || seen[root] {
			continue
		}
		seen[root] = true
		roots = append(roots, root)
	}
	return roots
}
