// Package models defines the persistent data model for the Nova Player backend.
//
// The only persisted entity is [User], which carries local credentials,
// verification state, and the linked Spotify identity with its access and
// refresh tokens. The refresh token column always holds the encrypted
// form ("ivHex:cipherHex"); encryption and decryption happen at the edges,
// never inside the repository.
package models
