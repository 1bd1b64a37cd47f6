// Package session owns the authenticated session of the client: the current token pair,
// the identity decoded from the access token, and their persisted mirror in the secure store.
//
// Manager is the only mutator of session state. Login, refresh and logout are serialized;
// concurrent refreshes share one provider round trip. Reads never wait on network I/O.
//
// Lifecycle:
//
//	Uninitialized -> Loading -> Authenticated | Unauthenticated
//	Authenticated <-> Unauthenticated   (login, logout, refresh failure)
//
// Loading is entered once, by Load, which seeds the session from storage before any UI is
// shown. Storage is ground truth across restarts.
package session
