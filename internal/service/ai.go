package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sakif/devstats/internal/ai"
	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/github"
	"github.com/sakif/devstats/internal/telemetry"
)

const (
	MaxDiffBytes    = 12000
	DefaultTone     = "professional"
	DefaultBioWords = 80
	MinBioWords     = 20
	MaxBioWords     = 300
	MaxPRTitle      = 256
	MaxPRBody       = 4000
)

var Tones = []string{"professional", "friendly", "playful", "concise"}

type ReadmeRequest struct {
	Tone string `json:"tone"`
}

type BioRequest struct {
	Tone     string `json:"tone"`
	MaxWords int    `json:"maxWords"`
}

type PRSummaryRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Diff  string `json:"diff"`
}

// Generation is the response of every AI endpoint.
type Generation struct {
	Kind      string `json:"kind"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"` // PR diff was cut to MaxDiffBytes
}

// MetricsSource is satisfied by *GitHubService.
type MetricsSource interface {
	Metrics(ctx context.Context, userID string) (*MetricsResult, error)
}

// AIService builds prompts from fresh GitHub metrics and asks the model.
// All four generators are Pro features. model is nil when AI is not
// configured.
type AIService struct {
	model   ai.Model
	pro     ProChecker
	source  MetricsSource
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewAIService(model ai.Model, pro ProChecker, source MetricsSource, metrics *telemetry.Metrics, logger *slog.Logger) *AIService {
	return &AIService{model: model, pro: pro, source: source, metrics: metrics, logger: logger}
}

const readmeSystem = `You write GitHub profile README files in Markdown.
Use only the facts given. Never invent projects, employers or numbers.
Start with a level-one heading. Keep it under 400 words.`

const bioSystem = `You write short developer bios in the third person from GitHub activity data.
Use only the facts given. Plain text, no Markdown, no hashtags.`

const prSummarySystem = `You summarise pull requests for reviewers.
Answer in Markdown with the sections "Summary", "Changes" and "Risks".
Base every statement on the diff; say so when the diff was truncated.`

const analyzeSystem = `You are a friendly engineering coach reviewing a developer's GitHub activity.
Describe strengths, working patterns (time of day, languages, consistency) and
two or three concrete suggestions. Use Markdown with short sections.`

func (s *AIService) Readme(ctx context.Context, userID string, req ReadmeRequest) (*Generation, error) {
	tone, err := validateTone(req.Tone)
	if err != nil {
		return nil, err
	}
	m, err := s.prepare(ctx, userID, "AI README generation", true)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("Tone: %s.\nWrite a profile README for this developer.\n\n%s", tone, describeMetrics(m))
	return s.generate(ctx, "readme", readmeSystem, prompt)
}

func (s *AIService) Bio(ctx context.Context, userID string, req BioRequest) (*Generation, error) {
	tone, err := validateTone(req.Tone)
	if err != nil {
		return nil, err
	}
	words := req.MaxWords
	if words == 0 {
		words = DefaultBioWords
	}
	if words < MinBioWords || words > MaxBioWords {
		return nil, apperror.ValidationFailed("maxWords",
			fmt.Sprintf("maxWords must be between %d and %d", MinBioWords, MaxBioWords))
	}
	m, err := s.prepare(ctx, userID, "AI bio generation", true)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("Tone: %s.\nWrite a bio of at most %d words.\n\n%s", tone, words, describeMetrics(m))
	return s.generate(ctx, "bio", bioSystem, prompt)
}

func (s *AIService) PRSummary(ctx context.Context, userID string, req PRSummaryRequest) (*Generation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxPRTitle {
		return nil, apperror.ValidationFailed("title", fmt.Sprintf("title must be %d characters or less", MaxPRTitle))
	}
	if len(req.Body) > MaxPRBody {
		return nil, apperror.ValidationFailed("body", fmt.Sprintf("body must be %d characters or less", MaxPRBody))
	}
	if strings.TrimSpace(req.Diff) == "" {
		return nil, apperror.ValidationFailed("diff", "diff is required")
	}
	if _, err := s.prepare(ctx, userID, "AI PR summaries", false); err != nil {
		return nil, err
	}

	diff, truncated := truncateUTF8(req.Diff, MaxDiffBytes)
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", title)
	if body := strings.TrimSpace(req.Body); body != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", body)
	}
	if truncated {
		fmt.Fprintf(&b, "\nThe diff below was truncated to the first %d bytes.\n", MaxDiffBytes)
	}
	fmt.Fprintf(&b, "\nDiff:\n```diff\n%s\n```\n", diff)

	gen, err := s.generate(ctx, "pr-summary", prSummarySystem, b.String())
	if err != nil {
		return nil, err
	}
	gen.Truncated = truncated
	return gen, nil
}

func (s *AIService) Analyze(ctx context.Context, userID string) (*Generation, error) {
	m, err := s.prepare(ctx, userID, "AI profile analysis", true)
	if err != nil {
		return nil, err
	}
	prompt := "Analyse this developer's activity.\n\n" + describeMetrics(m)
	return s.generate(ctx, "analyze", analyzeSystem, prompt)
}

// prepare runs the checks shared by all generators and, when withMetrics is
// set, loads fresh metrics. Generating from the zeroed fallback record would
// only produce nonsense, so a degraded fetch is an upstream error here.
func (s *AIService) prepare(ctx context.Context, userID, feature string, withMetrics bool) (*github.Metrics, error) {
	if s.model == nil {
		return nil, apperror.ConflictCode("ai_disabled", "AI features are not configured on this server")
	}
	if err := s.pro.RequirePro(ctx, userID, feature); err != nil {
		return nil, err
	}
	if !withMetrics {
		return nil, nil
	}

	res, err := s.source.Metrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	if res.Degraded {
		return nil, apperror.Upstream("GitHub", fmt.Errorf("metrics unavailable for %s", userID))
	}
	return res.Metrics, nil
}

func (s *AIService) generate(ctx context.Context, kind, system, prompt string) (*Generation, error) {
	start := time.Now()
	out, err := s.model.Generate(ctx, system, prompt)
	s.metrics.AIGeneration(kind, err)
	if err != nil {
		s.logger.Warn("ai generation failed",
			slog.String("kind", kind),
			slog.String("model", s.model.Name()),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("AI model", err)
	}
	s.logger.Debug("ai generation done",
		slog.String("kind", kind),
		slog.String("model", s.model.Name()),
		slog.Duration("took", time.Since(start)),
	)
	return &Generation{Kind: kind, Content: out}, nil
}

func validateTone(tone string) (string, error) {
	tone = strings.ToLower(strings.TrimSpace(tone))
	if tone == "" {
		return DefaultTone, nil
	}
	if !slices.Contains(Tones, tone) {
		return "", apperror.ValidationFailed("tone",
			fmt.Sprintf("tone must be one of %s", strings.Join(Tones, ", ")))
	}
	return tone, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

var weekdays = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// describeMetrics renders the facts the model may use, one per line.
func describeMetrics(m *github.Metrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GitHub login: %s\n", m.Login)
	fmt.Fprintf(&b, "Public repositories (excluding forks): %d, stars: %d, forks: %d\n",
		m.TotalRepos, m.TotalStars, m.TotalForks)
	fmt.Fprintf(&b, "Commits on default branches: %d (+%d / -%d lines, %d files)\n",
		m.TotalCommits, m.Additions, m.Deletions, m.FilesChanged)
	fmt.Fprintf(&b, "Pull requests: %d, issues: %d, contributions in the last year: %d\n",
		m.PullRequests, m.Issues, m.Contributions)

	if langs := topLanguages(m.Languages, 5); len(langs) > 0 {
		fmt.Fprintf(&b, "Top languages: %s\n", strings.Join(langs, ", "))
	}
	if m.TotalCommits > 0 {
		fmt.Fprintf(&b, "Most active hour: %02d:00, most active day: %s\n",
			argmax(m.HourlyActivity[:]), weekdays[argmax(m.DailyActivity[:])])
	}
	if len(m.TopRepos) > 0 {
		b.WriteString("Top repositories:\n")
		for _, r := range m.TopRepos {
			fmt.Fprintf(&b, "- %s (%d stars", r.Name, r.Stars)
			if r.Language != "" {
				fmt.Fprintf(&b, ", %s", r.Language)
			}
			b.WriteString(")")
			if r.Description != "" {
				fmt.Fprintf(&b, ": %s", r.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func topLanguages(langs map[string]int64, n int) []string {
	var total int64
	names := make([]string, 0, len(langs))
	for name, size := range langs {
		names = append(names, name)
		total += size
	}
	if total == 0 {
		return nil
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(langs[b], langs[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	out := make([]string, 0, n)
	for _, name := range names[:min(n, len(names))] {
		out = append(out, fmt.Sprintf("%s %.0f%%", name, float64(langs[name])*100/float64(total)))
	}
	return out
}

func argmax(xs []int) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
