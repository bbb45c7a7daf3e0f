package core

import (
	"fmt"
	"strings"
)

// ModelID names an embedding model as "provider/name", for example
// "ollama/all-minilm" or "openai/text-embedding-3-small". The string form
// is what gets recorded in an index artifact.
type ModelID struct {
	Provider string
	Name     string
}

func ParseModelID(s string) (ModelID, error) {
	provider, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || provider == "" || name == "" {
		return ModelID{}, NewOpError("parse model id", ErrModelLoad, fmt.Errorf("%q is not provider/name", s))
	}
	return ModelID{Provider: strings.ToLower(provider), Name: name}, nil
}

func (m ModelID) String() string {
	return m.Provider + "/" + m.Name
}
