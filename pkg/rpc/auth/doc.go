// Package auth attaches bearer credentials to outgoing gRPC calls and
// verifies them on the server side.
//
// A TokenSource is consulted on every call, so rotating credentials never
// requires rebuilding a channel. JWTSource mints short-lived HS256 tokens and
// JWTVerifier checks them.
package auth
