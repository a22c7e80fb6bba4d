package models

import (
	"errors"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Field limits shared by mutations, imports and restores.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 2000
	MaxTitleLength       = 200
	MaxBodyBytes         = 1 << 20
	MaxTags              = 32
)

// ValidUTF8 rejects text that is not valid UTF-8. Encoding such text as JSON
// replaces the bad bytes, so what is stored would differ from what is indexed.
var ValidUTF8 = validation.By(func(value interface{}) error {
	if s, ok := value.(string); ok && !utf8.ValidString(s) {
		return errors.New("must be valid UTF-8")
	}
	return nil
})

// Validate checks the field limits of a notebook.
func (n Notebook) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Name, validation.Required, validation.RuneLength(1, MaxNameLength), ValidUTF8),
		validation.Field(&n.Description, validation.RuneLength(0, MaxDescriptionLength), ValidUTF8),
	)
}

// Validate checks the field limits of a snippet.
func (s Snippet) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.NotebookID, validation.Required),
		validation.Field(&s.Title, validation.Required, validation.RuneLength(1, MaxTitleLength), ValidUTF8),
		validation.Field(&s.Description, validation.RuneLength(0, MaxDescriptionLength), ValidUTF8),
		validation.Field(&s.Body, validation.Length(0, MaxBodyBytes), ValidUTF8),
		validation.Field(&s.Language, ValidUTF8),
		validation.Field(&s.Tags, validation.Length(0, MaxTags), validation.Each(ValidUTF8)),
	)
}
