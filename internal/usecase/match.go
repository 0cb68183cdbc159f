// Package usecase contains the matching and recommendation services.
package usecase

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fairyhunter13/subsidy-matcher/internal/adapter/catalog"
	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
	"github.com/fairyhunter13/subsidy-matcher/internal/observability"
)

// pointNamespace derives deterministic Qdrant point ids from subsidy ids so
// duplicate index builds upsert the same points.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// MatchService returns ordered candidate subsidies for a company profile.
// The semantic strategy searches a lazily built vector index; any failure
// degrades to the deterministic keyword filter. Match never returns an error
// to the caller.
type MatchService struct {
	Catalog    *catalog.Catalog
	AI         domain.AIClient
	Index      domain.VectorIndex
	Collection string
	VectorSize int
	TopK       int
	// SuggestCount is the number of leading catalog records returned when
	// both strategies come up empty. 0 disables the suggestion policy.
	SuggestCount int
	Synonyms     SynonymSet

	buildMu sync.Mutex
	built   bool
}

// NewMatchService constructs a MatchService.
func NewMatchService(cat *catalog.Catalog, aicl domain.AIClient, index domain.VectorIndex, collection string, vectorSize, topK, suggestCount int, syn SynonymSet) *MatchService {
	return &MatchService{
		Catalog:      cat,
		AI:           aicl,
		Index:        index,
		Collection:   collection,
		VectorSize:   vectorSize,
		TopK:         topK,
		SuggestCount: suggestCount,
		Synonyms:     syn,
	}
}

// Match returns a duplicate-free ordered set of catalog records for the
// profile. The result is never nil unless the suggestion policy is disabled
// and nothing matched.
func (s *MatchService) Match(ctx domain.Context, profile domain.CompanyProfile) []domain.Subsidy {
	lg := observability.LoggerFromContext(ctx)
	if matches, err := s.semanticMatch(ctx, profile); err != nil {
		lg.Warn("semantic match failed, using keyword filter", slog.Any("error", err))
	} else if len(matches) > 0 {
		observability.IncMatchStrategy("semantic")
		return matches
	} else {
		lg.Info("semantic match returned nothing, using keyword filter")
	}

	if matches := s.keywordMatch(profile); len(matches) > 0 {
		observability.IncMatchStrategy("keyword")
		return matches
	}

	if s.SuggestCount > 0 {
		lg.Info("no matches, returning leading catalog records", slog.Int("count", s.SuggestCount))
		observability.IncMatchStrategy("suggest")
		return s.Catalog.First(s.SuggestCount)
	}
	return nil
}

// semanticMatch embeds the profile query and searches the vector index,
// mapping hit ids back to catalog records in rank order.
func (s *MatchService) semanticMatch(ctx domain.Context, profile domain.CompanyProfile) ([]domain.Subsidy, error) {
	if s.AI == nil || s.Index == nil {
		return nil, fmt.Errorf("%w: semantic search not configured", domain.ErrInvalidArgument)
	}
	if err := s.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("index build: %w", err)
	}
	vecs, err := s.AI.Embed(ctx, []string{profile.Query()})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.Index.Search(ctx, s.Collection, vecs[0], s.TopK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	matches := make([]domain.Subsidy, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.SubsidyID]; dup {
			continue
		}
		rec, ok := s.Catalog.ByID(h.SubsidyID)
		if !ok {
			// Stale point from an older catalog; skip.
			continue
		}
		seen[h.SubsidyID] = struct{}{}
		matches = append(matches, rec)
	}
	return matches, nil
}

// ensureIndex builds the vector index from the catalog on first use. The
// build is guarded so concurrent first requests cannot run it twice; a failed
// build leaves the flag unset and the next request retries. Point ids are
// deterministic, so a repeated build upserts rather than duplicates.
func (s *MatchService) ensureIndex(ctx domain.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if s.built {
		return nil
	}
	if err := s.BuildIndex(ctx); err != nil {
		return err
	}
	s.built = true
	return nil
}

// BuildIndex embeds every catalog record and upserts it into the collection.
// It is exposed for the offline seed command and is idempotent.
func (s *MatchService) BuildIndex(ctx domain.Context) error {
	if err := s.Index.EnsureCollection(ctx, s.Collection, s.VectorSize, "Cosine"); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	records := s.Catalog.All()
	const batch = 16
	for i := 0; i < len(records); i += batch {
		end := i + batch
		if end > len(records) {
			end = len(records)
		}
		chunk := records[i:end]
		texts := make([]string, len(chunk))
		for j, r := range chunk {
			texts[j] = r.Document()
		}
		vecs, err := s.AI.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed catalog: %w", err)
		}
		payloads := make([]map[string]any, len(chunk))
		ids := make([]string, len(chunk))
		for j, r := range chunk {
			payloads[j] = map[string]any{"subsidy_id": r.ID, "name": r.Name}
			ids[j] = uuid.NewSHA1(pointNamespace, []byte(r.ID)).String()
		}
		if err := s.Index.UpsertPoints(ctx, s.Collection, vecs, payloads, ids); err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
	}
	return nil
}

// keywordMatch filters the catalog with normalized substring matchers.
// Industry must match; size and stage are an OR of each other. Records keep
// catalog order.
func (s *MatchService) keywordMatch(profile domain.CompanyProfile) []domain.Subsidy {
	industryMatchers := expand(normalize(profile.Industry), s.Synonyms.Industry)
	sizeMatchers := expand(normalize(profile.CompanySize), s.Synonyms.Size)
	stageMatchers := expand(normalize(profile.Stage), s.Synonyms.Stage)

	var matches []domain.Subsidy
	for _, rec := range s.Catalog.All() {
		if !rec.Industry.ContainsAny(industryMatchers) {
			continue
		}
		if rec.CompanySize.ContainsAny(sizeMatchers) || rec.Stage.ContainsAny(stageMatchers) {
			matches = append(matches, rec)
		}
	}
	return matches
}
