package amazon

import (
	"encoding/json"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
)

// DecodeProducts converts an array of Listings Items API items
func (c *Client) DecodeProducts(data []byte) ([]clients.ExternalProduct, error) {
	var raw []listingItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "decode_products", err)
	}
	products := make([]clients.ExternalProduct, 0, len(raw))
	for _, item := range raw {
		products = append(products, c.convertListing(item))
	}
	return products, nil
}

// DecodeOrders converts an array of Orders API orders. Line items are not
// part of the order resource and are left empty.
func (c *Client) DecodeOrders(data []byte) ([]clients.ExternalOrder, error) {
	var raw []amazonOrder
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "decode_orders", err)
	}
	orders := make([]clients.ExternalOrder, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, convertOrder(o))
	}
	return orders, nil
}
