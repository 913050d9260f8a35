package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxCommitPages caps history pages (of 100 commits) per repository.
const DefaultMaxCommitPages = 10

const viewerQuery = `query Viewer {
  viewer {
    id
    login
    pullRequests { totalCount }
    issues { totalCount }
    contributionsCollection {
      contributionCalendar { totalContributions }
    }
  }
}`

const repositoriesQuery = `query Repositories($after: String) {
  viewer {
    repositories(first: 100, after: $after, ownerAffiliations: OWNER, isFork: false, orderBy: {field: STARGAZERS, direction: DESC}) {
      pageInfo { hasNextPage endCursor }
      nodes {
        name
        nameWithOwner
        url
        description
        isFork
        stargazerCount
        forkCount
        primaryLanguage { name }
        languages(first: 20, orderBy: {field: SIZE, direction: DESC}) {
          edges { size node { name } }
        }
        defaultBranchRef { name }
      }
    }
  }
}`

const commitHistoryQuery = `query CommitHistory($owner: String!, $name: String!, $author: ID!, $after: String) {
  repository(owner: $owner, name: $name) {
    defaultBranchRef {
      target {
        ... on Commit {
          history(first: 100, after: $after, author: {id: $author}) {
            pageInfo { hasNextPage endCursor }
            nodes { committedDate additions deletions changedFilesIfAvailable }
          }
        }
      }
    }
  }
}`

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type viewerData struct {
	Viewer struct {
		ID           string `json:"id"`
		Login        string `json:"login"`
		PullRequests struct {
			TotalCount int `json:"totalCount"`
		} `json:"pullRequests"`
		Issues struct {
			TotalCount int `json:"totalCount"`
		} `json:"issues"`
		ContributionsCollection struct {
			ContributionCalendar struct {
				TotalContributions int `json:"totalContributions"`
			} `json:"contributionCalendar"`
		} `json:"contributionsCollection"`
	} `json:"viewer"`
}

type repoNode struct {
	Name            string `json:"name"`
	NameWithOwner   string `json:"nameWithOwner"`
	URL             string `json:"url"`
	Description     string `json:"description"`
	IsFork          bool   `json:"isFork"`
	StargazerCount  int    `json:"stargazerCount"`
	ForkCount       int    `json:"forkCount"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	Languages struct {
		Edges []struct {
			Size int64 `json:"size"`
			Node struct {
				Name string `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"languages"`
	DefaultBranchRef *struct {
		Name string `json:"name"`
	} `json:"defaultBranchRef"`
}

type repositoriesData struct {
	Viewer struct {
		Repositories struct {
			PageInfo pageInfo   `json:"pageInfo"`
			Nodes    []repoNode `json:"nodes"`
		} `json:"repositories"`
	} `json:"viewer"`
}

type commitNode struct {
	CommittedDate           time.Time `json:"committedDate"`
	Additions               int       `json:"additions"`
	Deletions               int       `json:"deletions"`
	ChangedFilesIfAvailable *int      `json:"changedFilesIfAvailable"`
}

type historyData struct {
	Repository *struct {
		DefaultBranchRef *struct {
			Target struct {
				History *struct {
					PageInfo pageInfo     `json:"pageInfo"`
					Nodes    []commitNode `json:"nodes"`
				} `json:"history"`
			} `json:"target"`
		} `json:"defaultBranchRef"`
	} `json:"repository"`
}

// FetcherConfig tunes a Fetcher. Zero values pick the defaults.
type FetcherConfig struct {
	MaxCommitPages int            // per repository
	Location       *time.Location // for hour / weekday buckets
	Logger         *slog.Logger
}

// Fetcher pages through the viewer's repositories and commit history. It is
// stateless between calls: no cache, no shared progress.
type Fetcher struct {
	client   *Client
	maxPages int
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

func NewFetcher(client *Client, cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:   client,
		maxPages: cfg.MaxCommitPages,
		loc:      cfg.Location,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	if f.maxPages <= 0 {
		f.maxPages = DefaultMaxCommitPages
	}
	if f.loc == nil {
		f.loc = time.UTC
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch builds the metrics for the owner of token. Any failure aborts the
// whole fetch; callers decide whether to fall back to DefaultMetrics.
func (f *Fetcher) Fetch(ctx context.Context, token string) (*Metrics, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	start := f.now()

	var v viewerData
	if err := f.client.Query(ctx, token, viewerQuery, nil, &v); err != nil {
		return nil, fmt.Errorf("github: loading viewer: %w", err)
	}

	agg := newAggregator(f.loc)
	agg.m.Login = v.Viewer.Login
	agg.m.PullRequests = v.Viewer.PullRequests.TotalCount
	agg.m.Issues = v.Viewer.Issues.TotalCount
	agg.m.Contributions = v.Viewer.ContributionsCollection.ContributionCalendar.TotalContributions

	repos, err := f.repositories(ctx, token)
	if err != nil {
		return nil, err
	}

	for _, r := range repos {
		summary := RepoSummary{
			Name:        r.Name,
			URL:         r.URL,
			Description: r.Description,
			Stars:       r.StargazerCount,
			Forks:       r.ForkCount,
		}
		if r.PrimaryLanguage != nil {
			summary.Language = r.PrimaryLanguage.Name
		}
		langs := make(map[string]int64, len(r.Languages.Edges))
		for _, e := range r.Languages.Edges {
			langs[e.Node.Name] += e.Size
		}
		agg.addRepo(summary, langs)

		if r.DefaultBranchRef == nil {
			continue // empty repository
		}
		if err := f.commits(ctx, token, r, v.Viewer.ID, agg); err != nil {
			return nil, err
		}
	}

	m := agg.finish(f.now())
	f.logger.Debug("github metrics fetched",
		"login", m.Login, "repos", m.TotalRepos, "commits", m.TotalCommits, "took", time.Since(start))
	return m, nil
}

func (f *Fetcher) repositories(ctx context.Context, token string) ([]repoNode, error) {
	var (
		out    []repoNode
		cursor *string
	)
	for {
		var page repositoriesData
		vars := map[string]any{"after": cursor}
		if err := f.client.Query(ctx, token, repositoriesQuery, vars, &page); err != nil {
			return nil, fmt.Errorf("github: listing repositories: %w", err)
		}
		conn := page.Viewer.Repositories
		for _, n := range conn.Nodes {
			if n.IsFork {
				continue
			}
			out = append(out, n)
		}
		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == "" {
			return out, nil
		}
		next := conn.PageInfo.EndCursor
		cursor = &next
	}
}

func (f *Fetcher) commits(ctx context.Context, token string, r repoNode, authorID string, agg *aggregator) error {
	owner, name, ok := splitNameWithOwner(r.NameWithOwner)
	if !ok {
		return fmt.Errorf("github: malformed repository name %q", r.NameWithOwner)
	}

	var cursor *string
	for page := 0; page < f.maxPages; page++ {
		var h historyData
		vars := map[string]any{"owner": owner, "name": name, "author": authorID, "after": cursor}
		err := f.client.Query(ctx, token, commitHistoryQuery, vars, &h)
		if errors.Is(err, ErrNotFound) {
			// Deleted or renamed between the listing and now.
			f.logger.Debug("repository vanished during fetch", "repo", r.NameWithOwner)
			return nil
		}
		if err != nil {
			return fmt.Errorf("github: commit history of %s: %w", r.NameWithOwner, err)
		}
		if h.Repository == nil || h.Repository.DefaultBranchRef == nil || h.Repository.DefaultBranchRef.Target.History == nil {
			return nil
		}

		hist := h.Repository.DefaultBranchRef.Target.History
		for _, c := range hist.Nodes {
			files := 0
			if c.ChangedFilesIfAvailable != nil {
				files = *c.ChangedFilesIfAvailable
			}
			agg.addCommit(c.CommittedDate, c.Additions, c.Deletions, files)
		}
		if !hist.PageInfo.HasNextPage || hist.PageInfo.EndCursor == "" {
			return nil
		}
		next := hist.PageInfo.EndCursor
		cursor = &next
	}

	f.logger.Debug("commit history truncated", "repo", r.NameWithOwner, "pages", f.maxPages)
	return nil
}

func splitNameWithOwner(s string) (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(s, "/")
	return owner, name, ok && owner != "" && name != ""
}
