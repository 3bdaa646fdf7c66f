package domain

import "fmt"

// OwnerKind distinguishes the two kinds of chunk owner.
type OwnerKind string

const (
	OwnerKindDocument OwnerKind = "document"
	OwnerKindBot      OwnerKind = "bot"
)

// Owner identifies the entity a chunk set belongs to. A chunk has exactly
// one owner, so document and bot ownership never overlap.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// DocumentOwner returns the owner for an uploaded document.
func DocumentOwner(id string) Owner {
	return Owner{Kind: OwnerKindDocument, ID: id}
}

// BotOwner returns the owner for a chat bot's knowledge base.
func BotOwner(id string) Owner {
	return Owner{Kind: OwnerKindBot, ID: id}
}

// String renders the owner as kind:id. Used as the advisory lock key.
func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}

// ValidateOwner checks that the owner kind is known and the id is present.
func ValidateOwner(o Owner) error {
	if !IsValidOwnerKind(o.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidOwnerKind, o.Kind)
	}
	if o.ID == "" {
		return NewDomainError(ErrCodeValidation, "owner ID is required")
	}
	return nil
}

// IsValidOwnerKind reports whether k is a known owner kind.
func IsValidOwnerKind(k OwnerKind) bool {
	switch k {
	case OwnerKindDocument, OwnerKindBot:
		return true
	}
	return false
}
