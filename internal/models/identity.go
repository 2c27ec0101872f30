package models

import "time"

// WorkerIdentity is the name a worker slot was last accepted under.
type WorkerIdentity struct {
	Slot      int       `json:"slot"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}
