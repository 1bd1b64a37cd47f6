// Package loopback presents the authorization UI in the system browser and receives the
// redirect on a short-lived HTTP server bound to the loopback interface.
//
// It implements session.Presenter for desktop and command line hosts, following the
// native-app pattern of RFC 8252: the redirect URI is http://127.0.0.1:<port>/callback and
// the authorization response arrives as its query string.
package loopback
