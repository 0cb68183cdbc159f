package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
	"github.com/fairyhunter13/subsidy-matcher/internal/usecase"
)

// countingAI fails or succeeds on demand and records call counts.
type countingAI struct {
	text    string
	err     error
	chats   int
	prompts []string
}

func (c *countingAI) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0}
	}
	return out, nil
}

func (c *countingAI) ChatText(_ domain.Context, prompt string, _ int) (string, error) {
	c.chats++
	c.prompts = append(c.prompts, prompt)
	return c.text, c.err
}

// mapCache is an in-memory RecommendationCache.
type mapCache struct {
	store  map[string]string
	getErr error
}

func newMapCache() *mapCache { return &mapCache{store: map[string]string{}} }

func (m *mapCache) Get(_ domain.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.store[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ domain.Context, key, text string) error {
	m.store[key] = text
	return nil
}

func sampleMatches() []domain.Subsidy {
	return []domain.Subsidy{
		{
			ID:            "tech-startup-grant",
			Name:          "Tech Startup Grant",
			Description:   "Funding for young tech companies",
			Eligibility:   "Startups under 5 years",
			Industry:      domain.Tags{"technology"},
			CompanySize:   domain.Tags{"startup"},
			Stage:         domain.Tags{"early"},
			FundingAmount: "EUR 50,000",
			Deadline:      "2026-12-31",
		},
		{
			ID:          "agri-fund",
			Name:        "Agri Fund",
			Description: "Support for farms",
			Eligibility: "Agricultural businesses",
			Industry:    domain.Tags{"agri-food"},
		},
	}
}

func TestRecommend_EmptyMatchesSkipsEverything(t *testing.T) {
	ai := &countingAI{text: "should not be used"}
	svc := &usecase.RecommendService{AI: ai, Cache: newMapCache(), MaxTokens: 512}

	got := svc.Recommend(context.Background(), techStartupProfile(), nil)
	assert.Equal(t, usecase.NoMatchRecommendation, got)
	assert.Zero(t, ai.chats)
}

func TestRecommend_GenerativeSuccessIsCached(t *testing.T) {
	ai := &countingAI{text: "Apply for the Tech Startup Grant first."}
	cache := newMapCache()
	svc := &usecase.RecommendService{AI: ai, Cache: cache, MaxTokens: 512}

	p := techStartupProfile()
	got := svc.Recommend(context.Background(), p, sampleMatches())
	assert.Equal(t, ai.text, got)
	require.Equal(t, 1, ai.chats)

	// Second call with identical inputs is served from the cache.
	got = svc.Recommend(context.Background(), p, sampleMatches())
	assert.Equal(t, ai.text, got)
	assert.Equal(t, 1, ai.chats)

	// A different match set must not reuse the cached narrative.
	_ = svc.Recommend(context.Background(), p, sampleMatches()[:1])
	assert.Equal(t, 2, ai.chats)
}

func TestRecommend_GenerativeFailureFallsBackToTemplate(t *testing.T) {
	ai := &countingAI{err: errors.New("upstream 500")}
	svc := &usecase.RecommendService{AI: ai, MaxTokens: 512}

	got := svc.Recommend(context.Background(), techStartupProfile(), sampleMatches())
	assert.Equal(t, usecase.TemplateRecommendation(sampleMatches()), got)
}

func TestRecommend_BlankGenerationFallsBackToTemplate(t *testing.T) {
	ai := &countingAI{text: "   \n"}
	svc := &usecase.RecommendService{AI: ai, MaxTokens: 512}

	got := svc.Recommend(context.Background(), techStartupProfile(), sampleMatches())
	assert.Equal(t, usecase.TemplateRecommendation(sampleMatches()), got)
}

func TestRecommend_NoAIUsesTemplate(t *testing.T) {
	svc := &usecase.RecommendService{}
	got := svc.Recommend(context.Background(), techStartupProfile(), sampleMatches())
	assert.Contains(t, got, "# Subsidy Recommendations")
}

func TestRecommend_CacheGetErrorIsNonFatal(t *testing.T) {
	ai := &countingAI{text: "generated"}
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	svc := &usecase.RecommendService{AI: ai, Cache: cache, MaxTokens: 512}

	got := svc.Recommend(context.Background(), techStartupProfile(), sampleMatches())
	assert.Equal(t, "generated", got)
}

func TestRecommend_PromptCarriesProfileAndMatches(t *testing.T) {
	ai := &countingAI{text: "ok"}
	svc := &usecase.RecommendService{AI: ai, MaxTokens: 512}

	_ = svc.Recommend(context.Background(), techStartupProfile(), sampleMatches())
	require.Len(t, ai.prompts, 1)
	prompt := ai.prompts[0]
	assert.Contains(t, prompt, "startup company in the technology industry")
	assert.Contains(t, prompt, "Tech Startup Grant")
	assert.Contains(t, prompt, "Agri Fund")
	assert.Contains(t, prompt, "priority order")
}

func TestRecommend_PromptBudgetClipsLongText(t *testing.T) {
	long := strings.Repeat("subsidy details ", 400)
	matches := sampleMatches()
	matches[0].Description = long

	ai := &countingAI{text: "ok"}
	svc := &usecase.RecommendService{AI: ai, MaxTokens: 512, PromptBudget: 300}
	_ = svc.Recommend(context.Background(), techStartupProfile(), matches)

	require.Len(t, ai.prompts, 1)
	assert.Less(t, len(ai.prompts[0]), len(long))
	assert.Contains(t, ai.prompts[0], "...")
}

func TestTemplateRecommendation_Shape(t *testing.T) {
	got := usecase.TemplateRecommendation(sampleMatches())

	assert.Contains(t, got, "We've found 2 subsidies that match your criteria:")
	assert.Contains(t, got, "## 1. Tech Startup Grant")
	assert.Contains(t, got, "## 2. Agri Fund")
	assert.Contains(t, got, "**Funding amount:** EUR 50,000")
	assert.Contains(t, got, "**Deadline:** 2026-12-31")
	// Blank catalog fields render their defaults.
	assert.Contains(t, got, "**Funding amount:** Not specified")
	assert.Contains(t, got, "**Deadline:** Not specified")
	assert.Contains(t, got, "Contact the subsidy provider for more details.")
	assert.Contains(t, got, "available for all companies in the agri-food industry")
	assert.Contains(t, got, "preparing your application materials well in advance of deadlines")
}
