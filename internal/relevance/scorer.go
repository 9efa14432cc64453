// Package relevance scores candidate records before extraction.
//
// A score combines three signals, each normalized to [0, 1]:
//   - keyword: high-value terms in the pre-scrape title and snippet
//   - domain: membership of the host in the trusted-domain set
//   - structure: URL shape heuristics (clean path, dated slugs, query noise)
//
// The weighted sum is clamped to [0, 1] and rounded to two decimals.
package relevance

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/article-scraper/internal/filter"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// DefaultThreshold is the minimum score admitted to extraction.
const DefaultThreshold = 0.5

// Weights controls the contribution of each signal. They must sum to 1.
type Weights struct {
	Keyword   float64
	Domain    float64
	Structure float64
}

// DefaultWeights weighs keywords highest and URL shape lowest.
var DefaultWeights = Weights{Keyword: 0.55, Domain: 0.30, Structure: 0.15}

// Config carries everything the scorer reads.
type Config struct {
	Keywords       []string
	TrustedDomains []string
	Threshold      float64
	Weights        Weights
	// FreshnessWindow bounds how old a publish date may be to earn FreshnessBonus.
	FreshnessWindow time.Duration
	FreshnessBonus  float64
}

// Scorer is a pure, deterministic relevance function over Config.
type Scorer struct {
	keywords  []string
	trusted   map[string]struct{}
	threshold float64
	weights   Weights
	window    time.Duration
	bonus     float64
}

var (
	datedSegment = regexp.MustCompile(`(^|/)(19|20)\d{2}([/-](0[1-9]|1[0-2]))`)
	slugSegment  = regexp.MustCompile(`[a-z0-9]+-[a-z0-9]+`)
)

// New validates cfg and builds a Scorer.
func New(cfg Config) (*Scorer, error) {
	w := cfg.Weights
	if w == (Weights{}) {
		w = DefaultWeights
	}
	if w.Keyword < 0 || w.Domain < 0 || w.Structure < 0 {
		return nil, errors.New("relevance weights must be non-negative")
	}
	if sum := w.Keyword + w.Domain + w.Structure; math.Abs(sum-1) > 1e-9 {
		return nil, fmt.Errorf("relevance weights must sum to 1, got %.4f", sum)
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("relevance threshold must be within [0,1], got %v", threshold)
	}
	if cfg.FreshnessBonus < 0 || cfg.FreshnessBonus > 1 {
		return nil, fmt.Errorf("freshness bonus must be within [0,1], got %v", cfg.FreshnessBonus)
	}

	s := &Scorer{
		trusted:   make(map[string]struct{}, len(cfg.TrustedDomains)),
		threshold: threshold,
		weights:   w,
		window:    cfg.FreshnessWindow,
		bonus:     cfg.FreshnessBonus,
	}
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			s.keywords = append(s.keywords, k)
		}
	}
	for _, d := range cfg.TrustedDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			s.trusted[d] = struct{}{}
		}
	}
	return s, nil
}

// Threshold returns the admission threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Admit reports whether score passes the threshold.
func (s *Scorer) Admit(score float64) bool {
	return score >= s.threshold
}

// Score computes the relevance of rec in [0, 1].
func (s *Scorer) Score(rec scraper.CandidateRecord) float64 {
	title := strings.ToLower(strings.TrimSpace(rec.Title))
	snippet := strings.ToLower(strings.TrimSpace(rec.Snippet))
	trusted := s.isTrusted(rec.URL)
	if title == "" && snippet == "" && !trusted {
		return 0
	}

	var domain float64
	if trusted {
		domain = 1
	}
	total := s.weights.Keyword*s.keywordSignal(title, snippet, rec.Term) +
		s.weights.Domain*domain +
		s.weights.Structure*structureSignal(rec.URL)
	return round2(clamp(total))
}

// AdjustForFreshness raises score when the article was published within the
// freshness window before now. Dates in the future or outside the window leave
// score unchanged.
func (s *Scorer) AdjustForFreshness(score float64, published *time.Time, now time.Time) float64 {
	if published == nil || s.window <= 0 || s.bonus == 0 {
		return score
	}
	age := now.Sub(*published)
	if age < 0 || age > s.window {
		return score
	}
	return round2(clamp(score*(1-s.bonus) + s.bonus))
}

func (s *Scorer) keywordSignal(title, snippet, term string) float64 {
	terms := s.keywords
	if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
		terms = append(append([]string(nil), s.keywords...), term)
	}
	var signal float64
	if containsAny(title, terms) {
		signal += 0.6
	}
	if containsAny(snippet, terms) {
		signal += 0.2
	}
	if len(strings.Fields(title)) > 3 {
		signal += 0.2
	}
	return clamp(signal)
}

func (s *Scorer) isTrusted(rawURL string) bool {
	host, ok := filter.Host(rawURL)
	if !ok {
		return false
	}
	host = strings.TrimPrefix(host, "www.")
	for candidate := host; candidate != ""; {
		if _, hit := s.trusted[candidate]; hit {
			return true
		}
		idx := strings.IndexByte(candidate, '.')
		if idx < 0 {
			return false
		}
		candidate = candidate[idx+1:]
		// never trust a bare TLD
		if !strings.Contains(candidate, ".") {
			return false
		}
	}
	return false
}

func structureSignal(rawURL string) float64 {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return 0
	}
	signal := 0.5
	if !strings.ContainsAny(rawURL, "?&") {
		signal += 0.25
	}
	path := strings.ToLower(strings.Trim(u.Path, "/"))
	switch {
	case path == "":
		signal -= 0.25
	case datedSegment.MatchString(path) || slugSegment.MatchString(lastSegment(path)):
		signal += 0.25
	}
	if len(u.Query()) > 2 {
		signal -= 0.25
	}
	return clamp(signal)
}

func lastSegment(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func containsAny(text string, terms []string) bool {
	if text == "" {
		return false
	}
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
