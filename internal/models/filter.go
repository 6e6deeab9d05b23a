package models

import (
	"strconv"

	"github.com/persondetect/detect-console/internal/utils"
)

// Validation messages shown to the user when a filter cannot be applied.
const (
	MsgMinGreaterThanMax = "Min people cannot be greater than max people"
	MsgConfidenceRange   = "Confidence must be between 0 and 1"
	MsgNegativePeople    = "People count cannot be negative"
)

// FilterCriteria narrows the detection history. A nil field is absent and is never sent.
type FilterCriteria struct {
	MinPeople     *int
	MaxPeople     *int
	MinConfidence *float64
}

// IsEmpty reports whether no field is set.
func (f FilterCriteria) IsEmpty() bool {
	return f.MinPeople == nil && f.MaxPeople == nil && f.MinConfidence == nil
}

// Clone returns a deep copy so callers cannot alias another instance's fields.
func (f FilterCriteria) Clone() FilterCriteria {
	return FilterCriteria{
		MinPeople:     cloneInt(f.MinPeople),
		MaxPeople:     cloneInt(f.MaxPeople),
		MinConfidence: cloneFloat(f.MinConfidence),
	}
}

// Equal compares field values, treating two absent fields as equal.
func (f FilterCriteria) Equal(other FilterCriteria) bool {
	return equalInt(f.MinPeople, other.MinPeople) &&
		equalInt(f.MaxPeople, other.MaxPeople) &&
		equalFloat(f.MinConfidence, other.MinConfidence)
}

// Validate checks the criteria before they may drive a fetch.
func (f FilterCriteria) Validate() error {
	if (f.MinPeople != nil && *f.MinPeople < 0) || (f.MaxPeople != nil && *f.MaxPeople < 0) {
		return utils.NewValidationError("apply filters", MsgNegativePeople)
	}
	if f.MinPeople != nil && f.MaxPeople != nil && *f.MinPeople > *f.MaxPeople {
		return utils.NewValidationError("apply filters", MsgMinGreaterThanMax)
	}
	// NaN fails both comparisons, so test the accepted range instead of the rejected one.
	if f.MinConfidence != nil && !(*f.MinConfidence >= 0 && *f.MinConfidence <= 1) {
		return utils.NewValidationError("apply filters", MsgConfidenceRange)
	}
	return nil
}

// QueryParams returns the wire parameters for the present fields only.
func (f FilterCriteria) QueryParams() map[string]string {
	params := make(map[string]string, 3)
	if f.MinPeople != nil {
		params["min_people"] = strconv.Itoa(*f.MinPeople)
	}
	if f.MaxPeople != nil {
		params["max_people"] = strconv.Itoa(*f.MaxPeople)
	}
	if f.MinConfidence != nil {
		params["min_confidence"] = strconv.FormatFloat(*f.MinConfidence, 'f', -1, 64)
	}
	return params
}

// IntPtr and FloatPtr build optional filter values.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
