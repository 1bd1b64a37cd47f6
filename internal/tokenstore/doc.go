// Package tokenstore provides the secure key-value storage used to persist session credentials.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Memory: Process-local storage for ephemeral sessions and tests
//
// Every backend is addressed by key. The session manager stores the access token and the
// refresh token under separate keys; other client settings (e.g. the language preference)
// share the same store.
package tokenstore
