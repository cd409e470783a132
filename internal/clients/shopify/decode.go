package shopify

import (
	"encoding/json"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
)

// DecodeProducts converts an array of Admin API product objects
func (c *Client) DecodeProducts(data []byte) ([]clients.ExternalProduct, error) {
	var raw []shopifyProduct
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "decode_products", err)
	}
	products := make([]clients.ExternalProduct, 0, len(raw))
	for _, p := range raw {
		products = append(products, c.convertProduct(p))
	}
	return products, nil
}

// DecodeOrders converts an array of Admin API order objects
func (c *Client) DecodeOrders(data []byte) ([]clients.ExternalOrder, error) {
	var raw []shopifyOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "decode_orders", err)
	}
	orders := make([]clients.ExternalOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, convertOrder(o))
	}
	return orders, nil
}
