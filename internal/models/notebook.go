// Package models defines the domain types for snix.
package models

import (
	"strings"
	"time"
)

// Notebook is a named container node in the snippet hierarchy.
type Notebook struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"` // empty for root notebooks
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsRoot reports whether the notebook has no parent.
func (n Notebook) IsRoot() bool {
	return n.ParentID == ""
}

// NameKey normalizes a notebook name for sibling uniqueness checks.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
