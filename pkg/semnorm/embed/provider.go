// Package embed turns text into fixed-length vectors.
//
// A Provider is created once at startup and shared by every component that
// scores text. Implementations must be deterministic for a given model version
// and safe for concurrent use.
package embed

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
)

// Vector is an L2-normalised embedding.
type Vector = []float32

// Provider converts texts to vectors in one batch.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([]Vector, error)

	// Dimensions returns the vector dimensionality.
	Dimensions() int

	// Name identifies the model and its version.
	Name() string
}

// validateTexts rejects input that is not text.
func validateTexts(texts []string) error {
	for i, t := range texts {
		if !utf8.ValidString(t) {
			return fmt.Errorf("embed: text %d is not valid UTF-8: %w", i, internalerr.ErrUnembeddable)
		}
	}
	return nil
}
