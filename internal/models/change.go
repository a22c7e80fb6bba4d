package models

// Change kinds.
const (
	ChangeNotebook = "notebook"
	ChangeSnippet  = "snippet"
	ChangeTree     = "tree"
)

// Change describes one applied mutation. Tree changes (cascade deletes,
// imports, restores, reloads) carry no id.
type Change struct {
	Kind     string `json:"kind"`
	ID       string `json:"id,omitempty"`
	Revision uint64 `json:"revision"`
}

// IsChangeKind reports whether kind names a change kind.
func IsChangeKind(kind string) bool {
	switch kind {
	case ChangeNotebook, ChangeSnippet, ChangeTree:
		return true
	}
	return false
}
