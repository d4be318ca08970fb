// Package oauth provides OAuth 2.1 primitives shared by the authorization
// server and the local stdio authentication flow.
//
// It covers the cryptographic building blocks of the protocol:
//
//   - PKCE (Proof Key for Code Exchange) generation and S256 verification
//   - State parameter generation for CSRF protection
//   - URL-safe random token generation for codes and bearer tokens
//
// All random values are generated with crypto/rand and encoded with
// unpadded base64url per RFC 7636.
package oauth
