// Package server exposes the HTTP surface: the account endpoints under
// /auth and the authenticated Spotify proxy under /spotify.
package server
