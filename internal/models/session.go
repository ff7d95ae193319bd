package models

import "time"

// Session is one browser tab's workspace. Each session owns a single
// workflow controller.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}
