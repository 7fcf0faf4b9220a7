package model

import "github.com/golang-jwt/jwt/v5"

// CallerClaims are JWT claims identifying a roster member inside one external instance.
type CallerClaims struct {
	ExternalInstanceID string `json:"instanceId"`
	ExternalUserID     string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenRequest is the request body for issuing a caller token.
type TokenRequest struct {
	ExternalInstanceID string `json:"externalInstanceId"`
	ExternalUserID     string `json:"externalUserId"`
}

// TokenResponse is returned after a token is issued
type TokenResponse struct {
	Token string `json:"token"`
}
