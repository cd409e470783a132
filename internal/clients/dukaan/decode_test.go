package dukaan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
)

func TestDecodeProducts(t *testing.T) {
	c := &Client{}
	var _ clients.PayloadDecoder = c

	products, err := c.DecodeProducts([]byte(`[{"id":"p-1","name":"Widget","sku":"PROD-001","selling_price":19.99,"inventory":25,"status":"active"}]`))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "PROD-001", products[0].SKU)
	assert.Equal(t, 25, products[0].Quantity)

	_, err = c.DecodeProducts([]byte(`{"not":"an array"}`))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestDecodeOrders(t *testing.T) {
	c := &Client{}
	orders, err := c.DecodeOrders([]byte(`[{"id":"o-1","order_number":"1001","status":"confirmed","total":39.98,"line_items":[{"id":"l-1","sku":"PROD-001","quantity":2,"price":19.99}]}]`))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o-1", orders[0].ID)
	require.Len(t, orders[0].LineItems, 1)
}
