// Package auth implements account lifecycle and session management: local
// registration with email verification, login with bcrypt credentials,
// password reset, the Spotify OAuth authorization-code flow, and JWT
// session tokens.
package auth
