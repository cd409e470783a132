package clients

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/models"
)

// SignatureEncoding selects how a webhook HMAC is rendered in its header
type SignatureEncoding int

const (
	SignatureBase64 SignatureEncoding = iota
	SignatureHex
)

// SignHMAC computes the HMAC-SHA256 of body in the given encoding
func SignHMAC(secret string, body []byte, enc SignatureEncoding) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sum := mac.Sum(nil)
	if enc == SignatureHex {
		return hex.EncodeToString(sum)
	}
	return base64.StdEncoding.EncodeToString(sum)
}

// VerifyHMAC checks a webhook signature in constant time
func VerifyHMAC(marketplace models.MarketplaceType, secret string, body []byte, signature string, enc SignatureEncoding) error {
	const op = "verify_webhook"

	if secret == "" {
		return &apperrors.Error{Kind: apperrors.KindAuthentication, Op: op, Marketplace: string(marketplace), Err: errors.New("no webhook secret configured")}
	}
	if signature == "" {
		return &apperrors.Error{Kind: apperrors.KindAuthentication, Op: op, Marketplace: string(marketplace), Err: errors.New("missing webhook signature")}
	}

	signature = strings.TrimSpace(signature)
	if enc == SignatureHex {
		signature = strings.ToLower(strings.TrimPrefix(signature, "sha256="))
	}

	expected := SignHMAC(secret, body, enc)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return &apperrors.Error{Kind: apperrors.KindAuthentication, Op: op, Marketplace: string(marketplace), Err: errors.New("invalid webhook signature")}
	}
	return nil
}
