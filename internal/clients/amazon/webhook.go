package amazon

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

// notification is the SP-API notification envelope relayed to the webhook endpoint
type notification struct {
	NotificationVersion string                 `json:"NotificationVersion"`
	NotificationType    string                 `json:"NotificationType"`
	EventTime           string                 `json:"EventTime"`
	Payload             map[string]interface{} `json:"Payload"`
	NotificationMetadata struct {
		NotificationID string `json:"NotificationId"`
		PublishTime    string `json:"PublishTime"`
	} `json:"NotificationMetadata"`
}

// HandleWebhook verifies the hex HMAC in X-Amz-Signature and parses the envelope
func (c *Client) HandleWebhook(ctx context.Context, req *clients.WebhookRequest) (*clients.WebhookEvent, error) {
	signature := req.Headers.Get("X-Amz-Signature")
	if err := clients.VerifyHMAC(models.MarketplaceAmazon, c.webhookSecret, req.Body, signature, clients.SignatureHex); err != nil {
		return nil, err
	}

	var n notification
	if err := json.Unmarshal(req.Body, &n); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "handle_webhook", err)
	}
	if n.NotificationMetadata.NotificationID == "" {
		return nil, apperrors.New(apperrors.KindValidation, "handle_webhook", "notification has no id")
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(req.Body, &raw)

	event := &clients.WebhookEvent{
		EventID:      n.NotificationMetadata.NotificationID,
		EventType:    n.NotificationType,
		ResourceType: resourceType(n.NotificationType),
		ResourceID:   resourceID(n.Payload),
		Payload:      raw,
		Timestamp:    time.Now().UTC(),
	}
	if ts, err := time.Parse(time.RFC3339, n.EventTime); err == nil {
		event.Timestamp = ts
	}
	return event, nil
}

func resourceType(notificationType string) string {
	switch {
	case strings.Contains(notificationType, "ORDER"):
		return clients.ResourceOrder
	case strings.Contains(notificationType, "INVENTORY"), strings.Contains(notificationType, "FBA_"):
		return clients.ResourceInventory
	case strings.Contains(notificationType, "LISTING"), strings.Contains(notificationType, "PRODUCT"),
		strings.Contains(notificationType, "OFFER"), strings.Contains(notificationType, "PRICING"):
		return clients.ResourceProduct
	default:
		return "unknown"
	}
}

// resourceID digs the order id or seller SKU out of the nested payload
func resourceID(payload map[string]interface{}) string {
	for _, inner := range payload {
		m, ok := inner.(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range []string{"AmazonOrderId", "SellerSKU", "SellerSku", "Sku", "ASIN"} {
			if v, ok := m[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
