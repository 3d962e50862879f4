package models

import "github.com/golang-jwt/jwt/v5"

// ClientClaims is the payload of a bearer token accepted on scheduling routes.
type ClientClaims struct {
	ClientName string `json:"client_name,omitempty"`
	jwt.RegisteredClaims
}

// Principal identifies the caller of an authenticated request.
type Principal struct {
	Method  string
	Subject string
}

// Authentication methods recorded on a Principal.
const (
	AuthMethodAPIKey = "api_key"
	AuthMethodBearer = "bearer"
	AuthMethodNone   = "none"
)
