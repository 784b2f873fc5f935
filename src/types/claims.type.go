package types

import "github.com/golang-jwt/jwt/v5"

// Claims carried by gate device and staff tokens. Device is the scanner
// identity used as the scan actor when the body omits one.
type Claims struct {
	Device string `json:"device"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
