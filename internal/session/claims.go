package session

import (
	"fmt"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Claims are the fields embedded in the access token. The server signs the
// token; the client only reads the payload, so no signature verification
// happens here.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// DecodeClaims extracts the claims from a raw access token without
// verifying its signature.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("access token has no user id")
	}
	return claims, nil
}
