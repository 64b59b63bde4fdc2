// Package dataset describes already-parsed tabular input and derives the
// per-column features the classifier and mapper score.
package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// MaxSamples is the number of non-null values sampled per column.
const MaxSamples = 5

// DType is a column's inferred value type.
type DType string

const (
	DTypeNumeric  DType = "numeric"
	DTypeDatetime DType = "datetime"
	DTypeString   DType = "string"
	DTypeUnknown  DType = "unknown"
)

// Dataset is a parsed table: column headers plus rows of cell values.
// Rows may be ragged; missing cells are null. nil and blank strings are null.
type Dataset struct {
	Headers []string
	Rows    [][]any
}

// ColumnFeature is the ephemeral description of one column.
type ColumnFeature struct {
	Header        string
	SampleValues  []string
	InferredDType DType
}

// Column returns the values of column i, one per row.
func (d Dataset) Column(i int) []any {
	out := make([]any, len(d.Rows))
	for r, row := range d.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// Features derives one ColumnFeature per header, in header order.
func (d Dataset) Features() []ColumnFeature {
	features := make([]ColumnFeature, len(d.Headers))
	for i, h := range d.Headers {
		values := d.Column(i)
		features[i] = ColumnFeature{
			Header:        strings.TrimSpace(h),
			SampleValues:  Sample(values, MaxSamples),
			InferredDType: InferDType(values),
		}
	}
	return features
}

// Snippet renders the feature as "header: v1; v2; ...", header only when the
// column has no values.
func (f ColumnFeature) Snippet() string {
	if len(f.SampleValues) == 0 {
		return f.Header
	}
	return f.Header + ": " + strings.Join(f.SampleValues, "; ")
}

// Snippets renders every feature's snippet, in order.
func Snippets(features []ColumnFeature) []string {
	out := make([]string, len(features))
	for i, f := range features {
		out[i] = f.Snippet()
	}
	return out
}

// Sample returns up to n non-null values rendered as strings, in row order.
func Sample(values []any, n int) []string {
	var out []string
	for _, v := range values {
		if len(out) >= n {
			break
		}
		if s, ok := FormatValue(v); ok {
			out = append(out, s)
		}
	}
	return out
}

// FormatValue renders a cell for display. The boolean is false for nulls.
func FormatValue(v any) (string, bool) {
	if isNull(v) {
		return "", false
	}
	switch x := v.(type) {
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02"), true
		}
		return x.Format(time.RFC3339), true
	case string:
		return strings.TrimSpace(x), true
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return s, true
}

// InferDType classifies a column from all its non-null values: numeric when
// every value is a number, datetime when every value is a date or time,
// string otherwise, unknown when the column is empty.
func InferDType(values []any) DType {
	seen := 0
	numeric, datetime := true, true
	for _, v := range values {
		if isNull(v) {
			continue
		}
		seen++
		if numeric && !isNumeric(v) {
			numeric = false
		}
		if datetime && !isDatetime(v) {
			datetime = false
		}
		if !numeric && !datetime {
			return DTypeString
		}
	}
	switch {
	case seen == 0:
		return DTypeUnknown
	case numeric:
		return DTypeNumeric
	case datetime:
		return DTypeDatetime
	}
	return DTypeString
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

func isNumeric(v any) bool {
	switch x := v.(type) {
	case bool, time.Time:
		return false
	case string:
		_, err := cast.ToFloat64E(strings.TrimSpace(x))
		return err == nil
	default:
		_, err := cast.ToFloat64E(x)
		return err == nil
	}
}

// extraDateLayouts covers day-first formats common in European spreadsheets.
var extraDateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006 15:04",
}

func isDatetime(v any) bool {
	switch x := v.(type) {
	case time.Time:
		return true
	case string:
		s := strings.TrimSpace(x)
		if _, err := cast.ToTimeE(s); err == nil {
			return true
		}
		for _, layout := range extraDateLayouts {
			if _, err := time.Parse(layout, s); err == nil {
				return true
			}
		}
	}
	return false
}
