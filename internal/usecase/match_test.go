package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/catalog"
	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
	"github.com/fairyhunter13/subsidy-matcher/internal/usecase"
)

const fixtureJSON = `[
  {"id":"tech-startup-grant","name":"Tech Startup Grant","description":"Funding for young tech companies","eligibility":"Startups under 5 years","industry":["technology"],"companySize":["startup"],"stage":["early"],"fundingAmount":"EUR 50,000","deadline":"2026-12-31"},
  {"id":"agri-fund","name":"Agri Fund","description":"Support for farms","eligibility":"Agricultural businesses","industry":["agri-food"],"companySize":["medium","large"],"stage":["established"]},
  {"id":"open-grant","name":"Open Grant","description":"Open to everyone","eligibility":"Any Dutch company","industry":["all"],"companySize":["all"],"stage":["all"]},
  {"id":"energy-scaleup","name":"Energy Scale-up","description":"Scaling sustainable energy","eligibility":"Energy scale-ups","industry":["energy"],"companySize":["medium"],"stage":["growth"]}
]`

// narrowJSON has no wildcard records, so a mismatched profile really does
// come up empty.
const narrowJSON = `[
  {"id":"tech-startup-grant","name":"Tech Startup Grant","description":"Funding for young tech companies","eligibility":"Startups under 5 years","industry":["technology"],"companySize":["startup"],"stage":["early"]},
  {"id":"agri-fund","name":"Agri Fund","description":"Support for farms","eligibility":"Agricultural businesses","industry":["agri-food"],"companySize":["medium","large"],"stage":["established"]},
  {"id":"energy-scaleup","name":"Energy Scale-up","description":"Scaling sustainable energy","eligibility":"Energy scale-ups","industry":["energy"],"companySize":["medium"],"stage":["growth"]},
  {"id":"health-voucher","name":"Health Voucher","description":"Vouchers for health innovation","eligibility":"Health startups","industry":["health"],"companySize":["startup"],"stage":["early"]}
]`

func fixtureCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(fixtureJSON))
	require.NoError(t, err)
	return c
}

func narrowMatcher(t *testing.T, suggest int) *usecase.MatchService {
	t.Helper()
	c, err := catalog.Parse([]byte(narrowJSON))
	require.NoError(t, err)
	return usecase.NewMatchService(c, nil, nil, "subsidies", 3, 5, suggest, usecase.DefaultSynonyms())
}

// stubAI returns fixed vectors and canned text.
type stubAI struct {
	embedErr error
	chatText string
	chatErr  error
}

func (s *stubAI) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (s *stubAI) ChatText(_ domain.Context, _ string, _ int) (string, error) {
	return s.chatText, s.chatErr
}

// stubIndex records calls and returns configured hits.
type stubIndex struct {
	hits       []domain.SearchHit
	searchErr  error
	ensureErr  error
	upserts    int
	upsertIDs  []string
	searchCnt  int
	collection string
}

func (s *stubIndex) EnsureCollection(_ domain.Context, name string, _ int, _ string) error {
	s.collection = name
	return s.ensureErr
}

func (s *stubIndex) UpsertPoints(_ domain.Context, _ string, vectors [][]float32, payloads []map[string]any, ids []string) error {
	s.upserts++
	s.upsertIDs = append(s.upsertIDs, ids...)
	if len(vectors) != len(payloads) || len(vectors) != len(ids) {
		return errors.New("length mismatch")
	}
	return nil
}

func (s *stubIndex) Search(_ domain.Context, _ string, _ []float32, _ int) ([]domain.SearchHit, error) {
	s.searchCnt++
	return s.hits, s.searchErr
}

func newMatcher(t *testing.T, aicl domain.AIClient, index domain.VectorIndex, suggest int) *usecase.MatchService {
	t.Helper()
	return usecase.NewMatchService(fixtureCatalog(t), aicl, index, "subsidies", 3, 5, suggest, usecase.DefaultSynonyms())
}

func techStartupProfile() domain.CompanyProfile {
	return domain.CompanyProfile{Industry: "technology", CompanySize: "startup", Stage: "early", Needs: domain.DefaultNeeds}
}

func TestMatch_SemanticPreservesRankAndDropsUnknown(t *testing.T) {
	index := &stubIndex{hits: []domain.SearchHit{
		{SubsidyID: "energy-scaleup", Score: 0.9},
		{SubsidyID: "tech-startup-grant", Score: 0.8},
		{SubsidyID: "tech-startup-grant", Score: 0.7}, // duplicate
		{SubsidyID: "ghost", Score: 0.6},             // not in catalog
	}}
	m := newMatcher(t, &stubAI{}, index, 3)

	matches := m.Match(context.Background(), techStartupProfile())
	require.Len(t, matches, 2)
	assert.Equal(t, "energy-scaleup", matches[0].ID)
	assert.Equal(t, "tech-startup-grant", matches[1].ID)

	// Index is built once and reused.
	before := index.upserts
	_ = m.Match(context.Background(), techStartupProfile())
	assert.Equal(t, before, index.upserts)
	assert.Equal(t, 2, index.searchCnt)
}

func TestMatch_SemanticFailureFallsBackToKeyword(t *testing.T) {
	index := &stubIndex{searchErr: errors.New("qdrant down")}
	m := newMatcher(t, &stubAI{}, index, 3)

	matches := m.Match(context.Background(), techStartupProfile())
	require.NotEmpty(t, matches)
	// Keyword fallback keeps catalog order.
	assert.Equal(t, "tech-startup-grant", matches[0].ID)
	assert.Equal(t, "open-grant", matches[1].ID)
}

func TestMatch_FallbackIsDeterministic(t *testing.T) {
	// Two engines with broken semantic strategies yield identical results.
	m1 := newMatcher(t, &stubAI{embedErr: errors.New("no key")}, &stubIndex{}, 3)
	m2 := newMatcher(t, nil, nil, 3)

	p := techStartupProfile()
	assert.Equal(t, m1.Match(context.Background(), p), m2.Match(context.Background(), p))
}

func TestMatch_KeywordTechStartupSynonyms(t *testing.T) {
	m := newMatcher(t, nil, nil, 0)

	// "tech" and "small" trip the synonym expansions.
	matches := m.Match(context.Background(), domain.CompanyProfile{Industry: "tech", CompanySize: "small", Stage: "later"})
	ids := make([]string, 0, len(matches))
	for _, s := range matches {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "tech-startup-grant")
}

func TestMatch_IndustryMandatorySizeStageOr(t *testing.T) {
	m := newMatcher(t, nil, nil, 0)

	// Stage matches but industry does not: only the wildcard record survives.
	matches := m.Match(context.Background(), domain.CompanyProfile{Industry: "retail", CompanySize: "huge", Stage: "growth"})
	require.Len(t, matches, 1)
	assert.Equal(t, "open-grant", matches[0].ID)

	// Without wildcards the same profile is excluded outright.
	matches = narrowMatcher(t, 0).Match(context.Background(), domain.CompanyProfile{Industry: "retail", CompanySize: "huge", Stage: "growth"})
	assert.Empty(t, matches)

	// Industry matches and stage matches even though size does not.
	matches = m.Match(context.Background(), domain.CompanyProfile{Industry: "energy", CompanySize: "huge", Stage: "growth"})
	require.Len(t, matches, 2) // energy-scaleup plus the wildcard open-grant
	assert.Equal(t, "open-grant", matches[0].ID)
	assert.Equal(t, "energy-scaleup", matches[1].ID)
}

func TestMatch_EmptyResultSuggestionPolicy(t *testing.T) {
	m := narrowMatcher(t, 3)

	matches := m.Match(context.Background(), domain.CompanyProfile{Industry: "space mining", CompanySize: "huge", Stage: "later"})
	require.Len(t, matches, 3)
	assert.Equal(t, "tech-startup-grant", matches[0].ID)
	assert.Equal(t, "agri-fund", matches[1].ID)
	assert.Equal(t, "energy-scaleup", matches[2].ID)
}

func TestMatch_SuggestionPolicyDisabled(t *testing.T) {
	m := narrowMatcher(t, 0)
	matches := m.Match(context.Background(), domain.CompanyProfile{Industry: "space mining", CompanySize: "huge", Stage: "later"})
	assert.Empty(t, matches)
}

func TestMatch_ResultsDuplicateFreeAndInCatalog(t *testing.T) {
	cat := fixtureCatalog(t)
	profiles := []domain.CompanyProfile{
		techStartupProfile(),
		{Industry: "agri-food", CompanySize: "medium", Stage: "established"},
		{Industry: "nothing", CompanySize: "nothing", Stage: "nothing"},
	}
	m := newMatcher(t, nil, nil, 3)
	for _, p := range profiles {
		seen := map[string]bool{}
		for _, s := range m.Match(context.Background(), p) {
			assert.False(t, seen[s.ID], "duplicate %s", s.ID)
			seen[s.ID] = true
			_, ok := cat.ByID(s.ID)
			assert.True(t, ok, "unknown id %s", s.ID)
		}
	}
}

func TestMatch_SelfMatchProperty(t *testing.T) {
	// Each record's own tags used as the profile must match that record.
	m := newMatcher(t, nil, nil, 0)
	for _, rec := range fixtureCatalog(t).All() {
		p := domain.CompanyProfile{
			Industry:    rec.Industry[0],
			CompanySize: rec.CompanySize[0],
			Stage:       rec.Stage[0],
			Needs:       domain.DefaultNeeds,
		}
		matches := m.Match(context.Background(), p)
		found := false
		for _, s := range matches {
			if s.ID == rec.ID {
				found = true
				break
			}
		}
		assert.True(t, found, "record %s did not self-match", rec.ID)
	}
}

func TestMatch_IndexBuildRetriesAfterFailure(t *testing.T) {
	index := &stubIndex{ensureErr: errors.New("unreachable"), hits: []domain.SearchHit{{SubsidyID: "agri-fund"}}}
	m := newMatcher(t, &stubAI{}, index, 0)

	// First call: build fails, keyword fallback serves the request.
	matches := m.Match(context.Background(), techStartupProfile())
	assert.NotEmpty(t, matches)
	assert.Zero(t, index.searchCnt)

	// Backend recovers; the next request rebuilds and searches.
	index.ensureErr = nil
	matches = m.Match(context.Background(), techStartupProfile())
	require.Len(t, matches, 1)
	assert.Equal(t, "agri-fund", matches[0].ID)
	assert.Equal(t, 1, index.searchCnt)
}

func TestBuildIndex_DeterministicPointIDs(t *testing.T) {
	idx1 := &stubIndex{}
	idx2 := &stubIndex{}
	require.NoError(t, newMatcher(t, &stubAI{}, idx1, 0).BuildIndex(context.Background()))
	require.NoError(t, newMatcher(t, &stubAI{}, idx2, 0).BuildIndex(context.Background()))
	assert.Equal(t, idx1.upsertIDs, idx2.upsertIDs)
	assert.Len(t, idx1.upsertIDs, 4)
}
