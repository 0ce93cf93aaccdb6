// Package identity implements account signup, login, email verification,
// and password recovery on top of stateless cookie sessions.
//
// Sessions are signed JWT credentials carried in an http-only cookie and
// validated on every request; nothing is stored server side, so a session
// stays valid until its expiry even after logout. Verification codes and
// recovery tokens are single-use secrets consumed atomically in the
// database.
//
// The package exposes command handlers for each account operation, an
// Authenticator for credential checks, and a fiber controller wiring the
// HTTP surface. The client subpackage holds the consumer-side state
// container and route gate.
package identity
