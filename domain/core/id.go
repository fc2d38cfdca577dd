package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	FitID ID
	RunID ID
)

func (id FitID) String() string { return ID(id).String() }
func (id RunID) String() string { return ID(id).String() }
func (id FitID) IsEmpty() bool  { return id == "" }
func (id RunID) IsEmpty() bool  { return id == "" }

// NewFitID creates a time-ordered fit identifier
func NewFitID() FitID { return FitID(NewID()) }

// NewRunID creates a time-ordered run identifier
func NewRunID() RunID { return RunID(NewID()) }

// ParseFitID parses a string into FitID
func ParseFitID(s string) (FitID, error) {
	id, err := parseID("fit", s)
	return FitID(id), err
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	id, err := parseID("run", s)
	return RunID(id), err
}

func parseID(kind, s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%s ID cannot be empty", kind)
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("%s ID %q is not a UUID: %w", kind, s, err)
	}
	return ID(s), nil
}
