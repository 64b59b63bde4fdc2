// Package entity canonicalises raw entity references (names and source ids)
// against a per-run snapshot of the dimension store.
package entity

import (
	"fmt"
	"strings"

	"github.com/cognicore/semnorm/pkg/semnorm/embed"
	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
)

// Type is the kind of real-world referent.
type Type string

const (
	TypeTeacher Type = "teacher"
	TypeStudent Type = "student"
	TypeParent  Type = "parent"
	TypeRegion  Type = "region"
	TypeSchool  Type = "school"
	TypeSubject Type = "subject"
)

// Types lists every entity type in a stable order.
var Types = []Type{TypeTeacher, TypeStudent, TypeParent, TypeRegion, TypeSchool, TypeSubject}

// Valid reports whether t is a known entity type.
func (t Type) Valid() bool {
	switch t {
	case TypeTeacher, TypeStudent, TypeParent, TypeRegion, TypeSchool, TypeSubject:
		return true
	}
	return false
}

// RegionScoped reports whether entities of this type belong to a single
// region. Regions and subjects are global.
func (t Type) RegionScoped() bool {
	return t.Valid() && t != TypeRegion && t != TypeSubject
}

// ParseType converts s into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown entity type %q", internalerr.ErrInvalidInput, s)
	}
	return t, nil
}

// Record is one entity of the dimension store.
type Record struct {
	ID             string       `json:"entity_id"`
	Type           Type         `json:"entity_type"`
	RegionID       string       `json:"region_id,omitempty"`
	CanonicalName  string       `json:"canonical_name"`
	NormalizedName string       `json:"normalized_name"`
	SourceIDs      []string     `json:"source_ids,omitempty"`
	Embedding      embed.Vector `json:"-"`
	Provenance     string       `json:"provenance,omitempty"`
}

// Method names the resolution step that produced a match.
type Method string

const (
	MethodIDExact   Method = "ID_EXACT"
	MethodNameExact Method = "NAME_EXACT"
	MethodFuzzy     Method = "FUZZY"
	MethodEmbedding Method = "EMBEDDING"
	MethodNew       Method = "NEW"
)

// Confidence is the band of a match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Match is the outcome of resolving one source value.
type Match struct {
	EntityID        string     `json:"entity_id"`
	EntityName      string     `json:"entity_name"`
	EntityType      Type       `json:"entity_type"`
	SimilarityScore float64    `json:"similarity_score"`
	MatchMethod     Method     `json:"match_method"`
	Confidence      Confidence `json:"confidence"`
	SourceValue     string     `json:"source_value"`

	// MatchedVariant is the cached name that matched, when it differs from
	// the normalised input (initial expansion and fuzzy hits).
	MatchedVariant string `json:"matched_variant,omitempty"`

	// NewRecord is the record to persist when MatchMethod is NEW.
	NewRecord *Record `json:"new_record,omitempty"`
}

// IsNew reports whether the caller must create the entity.
func (m Match) IsNew() bool { return m.MatchMethod == MethodNew }
