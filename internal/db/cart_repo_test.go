package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shopmail/internal/types"
)

// cartMockRows implements pgx.Rows for ListWithEmail queries. Every row
// carries the items and region documents, matching the query's column list.
type cartMockRows struct {
	data   []cartRowData
	idx    int
	closed bool
	errVal error
}

type cartRowData struct {
	id        string
	email     *string
	context   types.Metadata
	metadata  types.Metadata
	updatedAt time.Time
	items     []byte
	region    []byte
}

func (r *cartMockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx <= len(r.data)
}

func (r *cartMockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	*(dest[0].(*string)) = row.id
	*(dest[1].(**string)) = row.email
	*(dest[2].(*types.Metadata)) = row.context
	*(dest[3].(*types.Metadata)) = row.metadata
	*(dest[5].(*time.Time)) = row.updatedAt
	*(dest[6].(*[]byte)) = row.items
	*(dest[7].(*[]byte)) = row.region
	return nil
}

func (r *cartMockRows) Close()                                       { r.closed = true }
func (r *cartMockRows) Err() error                                   { return r.errVal }
func (r *cartMockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *cartMockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *cartMockRows) RawValues() [][]byte                          { return nil }
func (r *cartMockRows) Values() ([]any, error)                       { return nil, nil }
func (r *cartMockRows) Conn() *pgx.Conn                              { return nil }

func TestCartRepository_Retrieve_ContextOnly(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewCartRepository(dbm)

	var capturedSQL string
	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { capturedSQL = args.String(1) }).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*(dest[0].(*string)) = "cart_1"
			*(dest[2].(*types.Metadata)) = types.Metadata{"locale": "de", "countryCode": "DE"}
			return nil
		}})

	cart, err := repo.Retrieve(context.Background(), "cart_1", types.RetrieveOptions{
		Select: []string{"id", "context"},
	})
	require.NoError(t, err)

	// No relations requested: the JSONB relation columns stay out of the query.
	assert.NotContains(t, capturedSQL, ", items")
	assert.NotContains(t, capturedSQL, ", region")
	assert.Equal(t, "cart_1", cart.ID)
	assert.Equal(t, "de", cart.Context["locale"])
}

func TestCartRepository_Retrieve_WithItemsAndRegion(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewCartRepository(dbm)

	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*(dest[0].(*string)) = "cart_1"
			*(dest[6].(*[]byte)) = []byte(`[{"id":"item_1","title":"Mug","quantity":1,"unit_price":900}]`)
			*(dest[7].(*[]byte)) = []byte(`{"id":"reg_1","currency_code":"eur","tax_rate":19}`)
			return nil
		}})

	cart, err := repo.Retrieve(context.Background(), "cart_1", types.RetrieveOptions{
		Relations: []string{"items", "region"},
	})
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Mug", cart.Items[0].Title)
	require.NotNil(t, cart.Region)
	assert.Equal(t, "eur", cart.Region.CurrencyCode)
	assert.Equal(t, 19.0, cart.Region.TaxRate)
}

func TestCartRepository_Retrieve_NotFound(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewCartRepository(dbm)

	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Retrieve(context.Background(), "missing", types.RetrieveOptions{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundCart, appErr.Code)
}

func TestCartRepository_ListWithEmail(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewCartRepository(dbm)

	email := "ada@example.com"
	rows := &cartMockRows{data: []cartRowData{
		{
			id:        "cart_1",
			email:     &email,
			context:   types.Metadata{"locale": "de"},
			updatedAt: testCreatedAt,
			items:     []byte(`[{"id":"item_1","title":"Mug","quantity":1,"unit_price":900}]`),
			region:    []byte(`{"id":"reg_1","currency_code":"eur"}`),
		},
	}}

	var capturedSQL string
	dbm.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { capturedSQL = args.String(1) }).
		Return(rows, nil)

	carts, err := repo.ListWithEmail(context.Background(), testCreatedAt)
	require.NoError(t, err)

	assert.Contains(t, capturedSQL, "email IS NOT NULL")
	assert.Contains(t, capturedSQL, "completed_at IS NULL")
	require.Len(t, carts, 1)
	assert.Equal(t, "cart_1", carts[0].ID)
	require.NotNil(t, carts[0].Email)
	assert.Equal(t, email, *carts[0].Email)
	require.Len(t, carts[0].Items, 1)
}

func TestCartRepository_UpdateMetadata_NotFound(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewCartRepository(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateMetadata(context.Background(), "missing", types.Metadata{"first_abandonedcart_mail": true})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundCart, appErr.Code)
}

func TestFulfillmentRepository_Retrieve(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewFulfillmentRepository(dbm)

	shipped := testCreatedAt
	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*(dest[0].(*string)) = "ful_1"
			*(dest[1].(*string)) = "order_1"
			*(dest[2].(*string)) = "manual"
			*(dest[3].(**time.Time)) = &shipped
			*(dest[6].(*[]byte)) = []byte(`[{"item_id":"item_1","quantity":1}]`)
			*(dest[7].(*[]byte)) = []byte(`[{"id":"tl_1","tracking_number":"TRACK-1"}]`)
			return nil
		}})

	f, err := repo.Retrieve(context.Background(), "ful_1", types.RetrieveOptions{
		Relations: []string{"items", "tracking_links"},
	})
	require.NoError(t, err)

	assert.Equal(t, "manual", f.ProviderID)
	require.NotNil(t, f.ShippedAt)
	require.Len(t, f.TrackingLinks, 1)
	assert.Equal(t, "TRACK-1", f.TrackingLinks[0].TrackingNumber)
}

func TestGiftCardRepository_Retrieve_WithOrder(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewGiftCardRepository(dbm)

	var capturedSQL string
	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { capturedSQL = args.String(1) }).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*(dest[0].(*string)) = "gc_1"
			*(dest[1].(*string)) = "GIFT-CODE"
			*(dest[2].(*int64)) = 5000
			*(dest[3].(*int64)) = 5000
			*(dest[5].(*[]byte)) = []byte(`{"id":"order_1","email":"ada@example.com"}`)
			return nil
		}})

	card, err := repo.Retrieve(context.Background(), "gc_1", types.RetrieveOptions{
		Relations: []string{"order"},
	})
	require.NoError(t, err)

	assert.Contains(t, capturedSQL, "order_doc")
	assert.Equal(t, "GIFT-CODE", card.Code)
	require.NotNil(t, card.Order)
	assert.Equal(t, "ada@example.com", card.Order.Email)
}
