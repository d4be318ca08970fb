// Package stdioauth implements browser-based authentication for the stdio
// transport, where no long-lived HTTP server exists to host the OAuth
// endpoints.
//
// The Manager spins up an ephemeral HTTP listener on a random loopback
// port for the duration of a single login attempt. The user opens the
// returned backend authorization URL in a browser; the backend redirects
// to the loopback listener with a one-time code, which the Manager
// exchanges for a session credential and an agent API key. Accounts with
// several agents get a selection page served from the same listener.
//
// The listener shuts down as soon as a key is obtained, or after a fixed
// timeout.
package stdioauth
