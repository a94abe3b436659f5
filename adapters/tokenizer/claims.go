package tokenizer

import "github.com/golang-jwt/jwt/v5"

// InitClaims combines standard claims with the ownership challenge
type InitClaims struct {
	jwt.RegisteredClaims
	UserID      uint64 `json:"id"`
	PublicToken string `json:"public_token"`
}

// AuthenticationClaims combines standard claims with the confirmed user id
type AuthenticationClaims struct {
	jwt.RegisteredClaims
	UserID uint64 `json:"id"`
}
