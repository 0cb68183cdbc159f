package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
	"github.com/fairyhunter13/subsidy-matcher/internal/observability"
)

// NoMatchRecommendation is returned without any external call when the match
// set is empty.
const NoMatchRecommendation = "No matching subsidies were found for your criteria. Try adjusting your search parameters."

// notSpecified fills in template fields the catalog leaves blank.
const notSpecified = "Not specified"

// RecommendService produces the recommendation narrative for a profile and
// its matched subsidies. The generative strategy is preferred; any failure
// degrades to the deterministic template. Recommend never returns an error.
type RecommendService struct {
	AI    domain.AIClient
	Cache domain.RecommendationCache
	// MaxTokens caps the generated completion length.
	MaxTokens int
	// PromptBudget caps the assembled prompt in tokens; per-match description
	// and eligibility text is truncated to fit.
	PromptBudget int

	enc *tiktoken.Tiktoken
}

// NewRecommendService constructs a RecommendService. The token encoder is
// best effort: when the encoding cannot be loaded, a byte-length estimate is
// used instead.
func NewRecommendService(aicl domain.AIClient, cache domain.RecommendationCache, maxTokens, promptBudget int) *RecommendService {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("tiktoken encoding unavailable, using byte estimate", slog.Any("error", err))
		enc = nil
	}
	return &RecommendService{AI: aicl, Cache: cache, MaxTokens: maxTokens, PromptBudget: promptBudget, enc: enc}
}

// Recommend returns the recommendation text for the profile and matches.
func (s *RecommendService) Recommend(ctx domain.Context, profile domain.CompanyProfile, matches []domain.Subsidy) string {
	if len(matches) == 0 {
		return NoMatchRecommendation
	}
	lg := observability.LoggerFromContext(ctx)

	key := cacheKey(profile, matches)
	if s.Cache != nil {
		if text, ok, err := s.Cache.Get(ctx, key); err != nil {
			lg.Warn("recommendation cache get failed", slog.Any("error", err))
		} else if ok {
			observability.IncRecommendStrategy("cache")
			return text
		}
	}

	if s.AI != nil {
		prompt := s.buildPrompt(profile, matches)
		text, err := s.AI.ChatText(ctx, prompt, s.MaxTokens)
		if err == nil && strings.TrimSpace(text) != "" {
			observability.IncRecommendStrategy("generative")
			if s.Cache != nil {
				if err := s.Cache.Set(ctx, key, text); err != nil {
					lg.Warn("recommendation cache set failed", slog.Any("error", err))
				}
			}
			return text
		}
		lg.Warn("generative recommendation failed, using template", slog.Any("error", err))
	}

	observability.IncRecommendStrategy("template")
	return TemplateRecommendation(matches)
}

// buildPrompt assembles the single generation prompt. When the prompt would
// exceed the token budget, per-match description and eligibility text is
// shortened until it fits.
func (s *RecommendService) buildPrompt(profile domain.CompanyProfile, matches []domain.Subsidy) string {
	clip := 0 // 0 means no clipping
	for {
		prompt := renderPrompt(profile, matches, clip)
		if s.PromptBudget <= 0 || s.countTokens(prompt) <= s.PromptBudget {
			return prompt
		}
		switch clip {
		case 0:
			clip = 400
		case 400:
			clip = 150
		default:
			return prompt
		}
	}
}

func renderPrompt(profile domain.CompanyProfile, matches []domain.Subsidy, clip int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I'm helping a %s company in the %s industry, currently at %s stage of development. They need assistance with %s.\n\n",
		profile.CompanySize, profile.Industry, profile.Stage, profile.Needs)
	b.WriteString("Based on their profile, I found these potential subsidies:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "- %s: %s\n  Eligibility: %s\n  Funding: %s\n  Deadline: %s\n",
			m.Name, truncate(m.Description, clip), truncate(m.Eligibility, clip), m.FundingAmount, m.Deadline)
	}
	b.WriteString("\nPlease provide a concise but comprehensive recommendation for this company. For each subsidy:\n")
	b.WriteString("1. Explain why it's relevant to their specific situation\n")
	b.WriteString("2. Highlight key eligibility factors they should be aware of\n")
	b.WriteString("3. Provide a priority order (most promising first)\n")
	b.WriteString("4. Add brief next steps they should take to apply\n\n")
	b.WriteString("Keep the tone professional and practical, focusing on actionable information.")
	return b.String()
}

func truncate(s string, clip int) string {
	if clip <= 0 || len(s) <= clip {
		return s
	}
	return s[:clip] + "..."
}

func (s *RecommendService) countTokens(text string) int {
	if s.enc != nil {
		return len(s.enc.Encode(text, nil, nil))
	}
	// Rough estimate: ~4 bytes per token for English prose.
	return len(text) / 4
}

// TemplateRecommendation deterministically renders the fallback narrative.
func TemplateRecommendation(matches []domain.Subsidy) string {
	var b strings.Builder
	b.WriteString("# Subsidy Recommendations\n\n")
	fmt.Fprintf(&b, "We've found %d subsidies that match your criteria:\n", len(matches))
	for i, m := range matches {
		fmt.Fprintf(&b, "\n## %d. %s\n\n", i+1, m.Name)
		fmt.Fprintf(&b, "**Description:** %s\n\n", m.Description)
		fmt.Fprintf(&b, "**Why it's relevant:** This subsidy is available for %s companies in the %s industry.\n\n",
			m.CompanySize.Join("all"), m.Industry.Join("all"))
		fmt.Fprintf(&b, "**Eligibility:** %s\n\n", m.Eligibility)
		fmt.Fprintf(&b, "**Funding amount:** %s\n\n", orDefault(m.FundingAmount, notSpecified))
		fmt.Fprintf(&b, "**Deadline:** %s\n\n", orDefault(m.Deadline, notSpecified))
		fmt.Fprintf(&b, "**Next steps:** %s\n", orDefault(m.ApplicationProcess, "Contact the subsidy provider for more details."))
	}
	b.WriteString("\nWe recommend reviewing each subsidy's details carefully and preparing your application materials well in advance of deadlines.")
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// cacheKey hashes the profile and the matched ids; a different match set must
// not serve a cached narrative written for another one.
func cacheKey(profile domain.CompanyProfile, matches []domain.Subsidy) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", profile.Industry, profile.CompanySize, profile.Stage, profile.Needs)
	for _, m := range matches {
		fmt.Fprintf(h, "|%s", m.ID)
	}
	return hex.EncodeToString(h.Sum(nil))
}
