package github

import (
	"cmp"
	"slices"
	"time"
)

// MaxTopRepos caps Metrics.TopRepos.
const MaxTopRepos = 6

// Metrics is the flat summary returned to the dashboard.
type Metrics struct {
	Login          string           `json:"login"`
	TotalRepos     int              `json:"totalRepos"`
	TotalStars     int              `json:"totalStars"`
	TotalForks     int              `json:"totalForks"`
	TotalCommits   int              `json:"totalCommits"`
	Additions      int              `json:"additions"`
	Deletions      int              `json:"deletions"`
	LinesChanged   int              `json:"linesChanged"`
	FilesChanged   int              `json:"filesChanged"`
	Languages      map[string]int64 `json:"languages"`
	HourlyActivity [24]int          `json:"hourlyActivity"`
	DailyActivity  [7]int           `json:"dailyActivity"` // Sunday first
	TopRepos       []RepoSummary    `json:"topRepos"`
	PullRequests   int              `json:"pullRequests"`
	Issues         int              `json:"issues"`
	Contributions  int              `json:"contributions"` // last year
	FetchedAt      time.Time        `json:"fetchedAt"`
}

type RepoSummary struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Stars       int    `json:"stars"`
	Forks       int    `json:"forks"`
}

// DefaultMetrics is the zeroed record shown when fetching fails. Collections
// are non-nil so clients always see {} and [] rather than null.
func DefaultMetrics() *Metrics {
	return &Metrics{
		Languages: map[string]int64{},
		TopRepos:  []RepoSummary{},
	}
}

// aggregator folds repositories and commits into a Metrics record.
type aggregator struct {
	m     *Metrics
	loc   *time.Location
	repos []RepoSummary
}

func newAggregator(loc *time.Location) *aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &aggregator{m: DefaultMetrics(), loc: loc}
}

func (a *aggregator) addRepo(r RepoSummary, languages map[string]int64) {
	a.m.TotalRepos++
	a.m.TotalStars += r.Stars
	a.m.TotalForks += r.Forks
	for lang, size := range languages {
		a.m.Languages[lang] += size
	}
	a.repos = append(a.repos, r)
}

func (a *aggregator) addCommit(committed time.Time, additions, deletions, files int) {
	a.m.TotalCommits++
	a.m.Additions += additions
	a.m.Deletions += deletions
	a.m.FilesChanged += files

	local := committed.In(a.loc)
	a.m.HourlyActivity[local.Hour()]++
	a.m.DailyActivity[local.Weekday()]++
}

// finish sorts top repositories by stars (name breaks ties) and stamps the
// record.
func (a *aggregator) finish(now time.Time) *Metrics {
	a.m.LinesChanged = a.m.Additions + a.m.Deletions

	slices.SortStableFunc(a.repos, func(x, y RepoSummary) int {
		if c := cmp.Compare(y.Stars, x.Stars); c != 0 {
			return c
		}
		return cmp.Compare(x.Name, y.Name)
	})
	top := a.repos[:min(len(a.repos), MaxTopRepos)]
	a.m.TopRepos = append([]RepoSummary{}, top...)

	a.m.FetchedAt = now.UTC()
	return a.m
}
