// Package jwt signs and verifies the short-lived session token: an HS256
// compact JWS carrying the principal handle and its role labels.
package jwt
