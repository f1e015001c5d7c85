package primary

import "context"

// JWTService signs and checks HMAC tokens for admin routes and webhooks
type JWTService interface {
	GenerateTokenHMAC(ctx context.Context, method string, claims map[string]interface{}) (string, error)
	VerifyTokenHMAC(ctx context.Context, token string, method string) (bool, error)
	DecodeTokenPayload(ctx context.Context, token string) (map[string]interface{}, error)
}
