// Package oauth implements the OAuth 2.1 authorization server that guards
// the HTTP MCP transport.
//
// The package has four layers:
//
//   - Store: persistence and expiry logic for client registrations, pending
//     logins, authorization codes, and access/refresh tokens. Clients and
//     tokens survive restarts via two JSON documents on disk.
//   - Provider: the authorization-code + PKCE + refresh state machine.
//     Identity resolution happens once, at code issuance; every token minted
//     afterwards carries the same agent binding.
//   - Handler: the protocol endpoints (metadata, dynamic registration,
//     authorize, token, revoke) and the bearer-token middleware.
//   - LoginFlow: the user-facing web flow bridging "authorize requested"
//     to "code issued" through phone or Google login and agent selection.
//
// User authentication is delegated entirely to the ClawdChat backend. This
// server never sees passwords; it holds the user's session JWT only long
// enough to resolve an agent API key.
package oauth
