package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"shopmail/internal/types"
)

// GiftCardRepository reads the replicated gift_cards table. The optional
// "order" relation is a JSONB snapshot of the purchasing order.
type GiftCardRepository struct {
	db DBTX
}

var _ types.GiftCardRepository = (*GiftCardRepository)(nil)

func NewGiftCardRepository(db DBTX) *GiftCardRepository {
	return &GiftCardRepository{db: db}
}

func (r *GiftCardRepository) Retrieve(ctx context.Context, id string, opts types.RetrieveOptions) (*types.GiftCard, error) {
	withOrder := hasRelation(opts.Relations, "order")

	columns := `id, code, value, balance, metadata`
	if withOrder {
		columns += `, order_doc`
	}

	row := r.db.QueryRow(ctx,
		`SELECT `+columns+` FROM gift_cards WHERE id = $1`, id)

	var card types.GiftCard
	var orderDoc []byte

	dest := []any{&card.ID, &card.Code, &card.Value, &card.Balance, &card.Metadata}
	if withOrder {
		dest = append(dest, &orderDoc)
	}

	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundGiftCard, "gift card not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve gift card", err)
	}

	if len(orderDoc) > 0 {
		if err := json.Unmarshal(orderDoc, &card.Order); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "corrupt gift card order document", err)
		}
	}
	return &card, nil
}
