// Package domain holds the core entities and ports of the subsidy matcher.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUpstreamError   = errors.New("upstream error")
	ErrInternal        = errors.New("internal error")
)

// Tags is a classifier attribute that may be serialized as a single string or
// a list of strings in the catalog JSON. An empty set means "no constraint".
type Tags []string

// UnmarshalJSON accepts either "technology" or ["technology", "it"].
func (t *Tags) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one == "" {
			*t = nil
			return nil
		}
		*t = Tags{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	*t = Tags(many)
	return nil
}

// ContainsAny reports whether any tag contains any of the matchers as a
// substring, case-insensitively. Substring semantics let form values like
// "tech" hit catalog tags like "technology".
func (t Tags) ContainsAny(matchers []string) bool {
	for _, tag := range t {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		for _, m := range matchers {
			if m != "" && strings.Contains(tag, m) {
				return true
			}
		}
	}
	return false
}

// Join renders the tag set for display, or fallback when empty.
func (t Tags) Join(fallback string) string {
	if len(t) == 0 {
		return fallback
	}
	return strings.Join(t, ", ")
}

// Subsidy is one catalog entry describing a funding program.
// Invariant: ID is unique across the catalog; the catalog is immutable after
// load and no component mutates a record.
type Subsidy struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	Eligibility        string `json:"eligibility"`
	Industry           Tags   `json:"industry"`
	CompanySize        Tags   `json:"companySize"`
	Stage              Tags   `json:"stage"`
	Deadline           string `json:"deadline"`
	ApplicationProcess string `json:"applicationProcess"`
	FundingAmount      string `json:"fundingAmount"`
	Website            string `json:"website"`
}

// Document renders the textual representation of a subsidy used for
// embedding. The field order is fixed; the semantic index is keyed off this
// rendering, so changing it requires a reseed.
func (s Subsidy) Document() string {
	return fmt.Sprintf(
		"Subsidy Name: %s\nDescription: %s\nEligibility: %s\nIndustry: %s\nCompany Size: %s\nCompany Stage: %s\nDeadline: %s\nApplication Process: %s\nFunding Amount: %s",
		s.Name, s.Description, s.Eligibility,
		s.Industry.Join(""), s.CompanySize.Join(""), s.Stage.Join(""),
		s.Deadline, s.ApplicationProcess, s.FundingAmount,
	)
}

// CompanyProfile is the user-submitted search criteria. It is transient,
// constructed per request, never persisted.
type CompanyProfile struct {
	Industry    string
	CompanySize string
	Stage       string
	Needs       string
}

// DefaultNeeds is used when the profile omits needs.
const DefaultNeeds = "funding and growth"

// Query renders the profile as the natural-language similarity-search query.
func (p CompanyProfile) Query() string {
	return fmt.Sprintf(
		"Find subsidies for a %s company in the %s industry, at %s stage, with specific needs for %s.",
		p.CompanySize, p.Industry, p.Stage, p.Needs,
	)
}

// AIClient (port)

type AIClient interface {
	// Embed returns one embedding vector per input text.
	Embed(ctx Context, texts []string) ([][]float32, error)
	// ChatText submits a single prompt and returns the generated text.
	ChatText(ctx Context, prompt string, maxTokens int) (string, error)
}

// VectorIndex (port) abstracts the similarity-search backend so the fallback
// paths can be exercised deterministically in tests.
type VectorIndex interface {
	EnsureCollection(ctx Context, name string, vectorSize int, distance string) error
	UpsertPoints(ctx Context, collection string, vectors [][]float32, payloads []map[string]any, ids []string) error
	Search(ctx Context, collection string, vector []float32, topK int) ([]SearchHit, error)
}

// SearchHit is one ranked result from the vector index. SubsidyID comes from
// the point payload; hits whose id is unknown to the catalog are dropped.
type SearchHit struct {
	SubsidyID string
	Score     float32
}

// RecommendationCache (port) is an optional cache for generated
// recommendation texts keyed by profile.
type RecommendationCache interface {
	Get(ctx Context, key string) (string, bool, error)
	Set(ctx Context, key, text string) error
}

// Context aliases context.Context so adapters and usecases share one
// signature shape without the domain importing HTTP concerns.
type Context = context.Context
