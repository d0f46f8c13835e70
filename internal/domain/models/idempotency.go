package models

import "time"

// IdempotencyRecord stores the first result committed under a key.
// A single writer persists it in the same commit boundary as the side
// effects it describes; replays return Result verbatim.
type IdempotencyRecord struct {
	Key         string
	Result      []byte
	CompletedAt time.Time
}
