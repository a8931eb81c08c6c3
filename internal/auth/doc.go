// Package auth verifies access tokens for WebSocket and API callers.
//
// Token issuance belongs to the platform's auth service; this package only
// parses and validates HS256 tokens, extracting the player identity that
// gates team presence and match control.
package auth
