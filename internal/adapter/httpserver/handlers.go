package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/subsidy-matcher/internal/config"
	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
	"github.com/fairyhunter13/subsidy-matcher/internal/observability"
	"github.com/fairyhunter13/subsidy-matcher/internal/usecase"
	"github.com/fairyhunter13/subsidy-matcher/pkg/textx"
)

// NoMatchMessage is returned with matchCount 0 when nothing matched.
const NoMatchMessage = "No matching subsidies found for your criteria. Try adjusting your search parameters."

// Matcher yields ordered candidate subsidies for a profile; it never errors.
type Matcher interface {
	Match(ctx domain.Context, profile domain.CompanyProfile) []domain.Subsidy
}

// Recommender produces the narrative for a profile and matches; never errors.
type Recommender interface {
	Recommend(ctx domain.Context, profile domain.CompanyProfile, matches []domain.Subsidy) string
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Matcher     Matcher
	Recommender Recommender
	QdrantCheck func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, m Matcher, r Recommender, qdrantCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Matcher: m, Recommender: r, QdrantCheck: qdrantCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type matchRequest struct {
	Industry    string `json:"industry" validate:"required"`
	CompanySize string `json:"companySize" validate:"required"`
	Stage       string `json:"stage" validate:"required"`
	Needs       string `json:"needs"`
}

// MatchSubsidyHandler handles POST /match-subsidy: validate, match under the
// matching budget, then recommend under the shorter recommendation budget.
// Every failure below validation degrades rather than erroring.
func (s *Server) MatchSubsidyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lg := observability.LoggerFromContext(r.Context())
		defer func() {
			if rec := recover(); rec != nil {
				lg.Error("match-subsidy panic", slog.Any("recover", rec))
				writeServerError(w)
			}
		}()

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeClientError(w, "invalid JSON body")
			return
		}
		if err := getValidator().Struct(req); err != nil {
			missing := make([]string, 0, 3)
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					missing = append(missing, jsonField(fe.Field()))
				}
			}
			writeClientError(w, "Missing required fields: "+strings.Join(missing, ", "))
			return
		}

		profile := domain.CompanyProfile{
			Industry:    textx.SanitizeText(req.Industry),
			CompanySize: textx.SanitizeText(req.CompanySize),
			Stage:       textx.SanitizeText(req.Stage),
			Needs:       textx.SanitizeText(req.Needs),
		}
		if profile.Industry == "" || profile.CompanySize == "" || profile.Stage == "" {
			writeClientError(w, "Missing required fields")
			return
		}
		if profile.Needs == "" {
			profile.Needs = domain.DefaultNeeds
		}

		matchCtx, cancelMatch := context.WithTimeout(r.Context(), s.Cfg.MatchTimeout)
		matches := s.Matcher.Match(matchCtx, profile)
		cancelMatch()

		if len(matches) == 0 {
			writeJSON(w, http.StatusOK, MatchResponse{
				Matches:        []domain.Subsidy{},
				MatchCount:     0,
				Recommendation: NoMatchMessage,
			})
			return
		}

		recommendation := s.recommendWithBudget(r.Context(), lg, profile, matches)
		writeJSON(w, http.StatusOK, MatchResponse{
			Matches:        matches,
			MatchCount:     len(matches),
			Recommendation: recommendation,
		})
	}
}

// recommendWithBudget races the recommender against the recommendation
// budget. If the budget expires before even the template fallback returned, a
// one-line default is synthesized so the request still succeeds.
func (s *Server) recommendWithBudget(ctx context.Context, lg *slog.Logger, profile domain.CompanyProfile, matches []domain.Subsidy) string {
	recCtx, cancel := context.WithTimeout(ctx, s.Cfg.RecommendTimeout)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		done <- s.Recommender.Recommend(recCtx, profile, matches)
	}()
	select {
	case text := <-done:
		return text
	case <-recCtx.Done():
		lg.Warn("recommendation budget expired, using default", slog.Duration("budget", s.Cfg.RecommendTimeout))
		observability.IncRecommendStrategy("default")
		return fmt.Sprintf("We found %d subsidies matching your criteria. These options are worth exploring for your %s business.",
			len(matches), profile.Industry)
	}
}

// PreflightHandler answers OPTIONS /match-subsidy with permissive CORS.
func PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReadyzHandler probes the configured external collaborators.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.QdrantCheck != nil {
			if err := s.QdrantCheck(ctx); err != nil {
				checks = append(checks, check{Name: "qdrant", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "qdrant", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// jsonField maps the Go struct field name reported by the validator to the
// JSON name the client sent.
func jsonField(field string) string {
	switch field {
	case "Industry":
		return "industry"
	case "CompanySize":
		return "companySize"
	case "Stage":
		return "stage"
	default:
		return strings.ToLower(field)
	}
}

var _ Matcher = (*usecase.MatchService)(nil)
var _ Recommender = (*usecase.RecommendService)(nil)
