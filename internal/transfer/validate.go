package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports the first reason doc cannot be restored as a whole store:
// unsupported format or version, empty or duplicate ids, fields outside the
// limits mutations enforce, dangling references, cycles or sibling name
// clashes.
func Validate(doc *Document) error {
	if doc == nil {
		return errors.New("empty document")
	}
	if doc.Format != Format {
		return fmt.Errorf("%w: format %q", ErrUnsupported, doc.Format)
	}
	if doc.Version < 1 || doc.Version > Version {
		return fmt.Errorf("%w: version %d", ErrUnsupported, doc.Version)
	}

	seen := make(map[string]struct{}, len(doc.Notebooks)+len(doc.Snippets))
	for _, n := range doc.Notebooks {
		if n.ID == "" {
			return errors.New("notebook with empty id")
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate id %s", n.ID)
		}
		seen[n.ID] = struct{}{}
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("notebook %s has no name", n.ID)
		}
		if err := n.model().Validate(); err != nil {
			return fmt.Errorf("notebook %s: %w", n.ID, err)
		}
	}
	for _, s := range doc.Snippets {
		if s.ID == "" {
			return errors.New("snippet with empty id")
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate id %s", s.ID)
		}
		seen[s.ID] = struct{}{}
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("snippet %s has no title", s.ID)
		}
		if err := s.model().Validate(); err != nil {
			return fmt.Errorf("snippet %s: %w", s.ID, err)
		}
	}
	return doc.ToSnapshot().Check()
}
