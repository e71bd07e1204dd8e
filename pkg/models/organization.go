package models

import (
	"time"
)

// Organization is the ownership boundary for every entity in the system.
// All reads and writes are scoped to exactly one organization.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
