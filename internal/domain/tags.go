package domain

import (
	"fmt"
	"strings"
)

type TagFamily string

const (
	FamilyFit   TagFamily = "fit"
	FamilyRisk  TagFamily = "risk"
	FamilyReady TagFamily = "ready"
)

// Tag is one of FitTag, RiskTag or ReadinessTag.
type Tag interface {
	Family() TagFamily
	Value() string
	String() string
	isTag()
}

type FitTag string

const (
	FitStrong      FitTag = "strong"
	FitConditional FitTag = "conditional"
	FitWeak        FitTag = "weak"
)

func (t FitTag) Family() TagFamily { return FamilyFit }
func (t FitTag) Value() string     { return string(t) }
func (t FitTag) String() string    { return "fit:" + string(t) }
func (FitTag) isTag()              {}

// RiskTag is either RiskNone or a risk category.
type RiskTag string

const RiskNone RiskTag = "none"

func (t RiskTag) Family() TagFamily { return FamilyRisk }
func (t RiskTag) Value() string     { return string(t) }
func (t RiskTag) String() string    { return "risk:" + string(t) }
func (RiskTag) isTag()              {}

type ReadinessTag string

const (
	ReadySign    ReadinessTag = "sign"
	ReadyDecline ReadinessTag = "decline"
	ReadyPause   ReadinessTag = "pause"
	ReadyClarify ReadinessTag = "clarify"
)

func (t ReadinessTag) Family() TagFamily { return FamilyReady }
func (t ReadinessTag) Value() string     { return string(t) }
func (t ReadinessTag) String() string    { return "ready:" + string(t) }
func (ReadinessTag) isTag()              {}

// TagEntry is the persisted form of a tag on an evaluation.
type TagEntry struct {
	Family             TagFamily `json:"family" enum:"fit,risk,ready"`
	Value              string    `json:"value"`
	AISuggested        bool      `json:"ai_suggested"`
	ConfirmedByFounder bool      `json:"confirmed_by_founder"`
}

func NewTagEntry(t Tag, aiSuggested bool) TagEntry {
	return TagEntry{Family: t.Family(), Value: t.Value(), AISuggested: aiSuggested}
}

// Tag converts the entry back into its variant, rejecting values outside the family.
func (e TagEntry) Tag() (Tag, error) {
	return makeTag(e.Family, e.Value)
}

func (e TagEntry) Matches(t Tag) bool {
	return e.Family == t.Family() && e.Value == t.Value()
}

func (e TagEntry) String() string {
	return string(e.Family) + ":" + e.Value
}

// ParseTag reads the "family:value" form used on the CLI and API.
func ParseTag(s string) (Tag, error) {
	family, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || value == "" {
		return nil, ValidationError{Field: "tag", Reason: fmt.Sprintf("%q is not family:value", s)}
	}
	return makeTag(TagFamily(family), value)
}

func makeTag(family TagFamily, value string) (Tag, error) {
	switch family {
	case FamilyFit:
		switch t := FitTag(value); t {
		case FitStrong, FitConditional, FitWeak:
			return t, nil
		}
	case FamilyRisk:
		t := RiskTag(value)
		if t == RiskNone || validRiskCategory(RiskCategory(value)) {
			return t, nil
		}
	case FamilyReady:
		switch t := ReadinessTag(value); t {
		case ReadySign, ReadyDecline, ReadyPause, ReadyClarify:
			return t, nil
		}
	default:
		return nil, ValidationError{Field: "tag", Reason: fmt.Sprintf("unknown tag family %q", family)}
	}
	return nil, ValidationError{Field: "tag", Reason: fmt.Sprintf("unknown %s tag %q", family, value)}
}

func validRiskCategory(c RiskCategory) bool {
	switch c {
	case RiskConflictOfInterest, RiskAvailability, RiskIPEncumbrance, RiskCapability, RiskCommunication:
		return true
	}
	return false
}
