package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSourceNotFound   = errors.New("knowledge base source not found")
	ErrMalformedRecord  = errors.New("malformed knowledge base record")
	ErrModelLoad        = errors.New("embedding model unavailable")
	ErrEmbedding        = errors.New("embedding failed")
	ErrQueryEmbedding   = errors.New("query embedding failed")
	ErrPersistence      = errors.New("index artifact persistence failed")
	ErrArtifactNotFound = errors.New("index artifact not found, run kb-builder first")
	ErrGeneration       = errors.New("answer generation failed")
	ErrInvalidQuery     = errors.New("invalid query")
)

// OpError ties a failed operation to one of the sentinel kinds above.
// errors.Is matches both Kind and anything in the Err chain.
type OpError struct {
	Op   string
	Kind error
	Path string
	Err  error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " [path=%s]", e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewOpError(op string, kind, err error) *OpError {
	return &OpError{Op: op, Kind: kind, Err: err}
}

func WithPath(err *OpError, path string) *OpError {
	err.Path = path
	return err
}

// Kind reports the first sentinel in err's chain, or nil when err is not
// one of ours.
func Kind(err error) error {
	for _, k := range []error{
		ErrSourceNotFound, ErrMalformedRecord, ErrModelLoad, ErrQueryEmbedding,
		ErrEmbedding, ErrPersistence, ErrArtifactNotFound, ErrGeneration, ErrInvalidQuery,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
