package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devstats/internal/logging"
)

// fakeGraphQL answers the three operations the fetcher sends, keyed on the
// operation name at the start of the document.
type fakeGraphQL struct {
	t *testing.T

	mu         sync.Mutex
	historyReq []string // "owner/name@cursor" in request order

	viewerStatus int // non-zero: answer the viewer query with this status
}

func (f *fakeGraphQL) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	after, _ := req.Variables["after"].(string)

	switch {
	case strings.HasPrefix(req.Query, "query Viewer"):
		if f.viewerStatus != 0 {
			w.WriteHeader(f.viewerStatus)
			return
		}
		fmt.Fprint(w, `{"data":{"viewer":{"id":"U_1","login":"octocat",
			"pullRequests":{"totalCount":4},"issues":{"totalCount":2},
			"contributionsCollection":{"contributionCalendar":{"totalContributions":321}}}}}`)

	case strings.HasPrefix(req.Query, "query Repositories"):
		if after == "" {
			fmt.Fprint(w, `{"data":{"viewer":{"repositories":{
				"pageInfo":{"hasNextPage":true,"endCursor":"r1"},
				"nodes":[
					{"name":"alpha","nameWithOwner":"octocat/alpha","url":"https://github.com/octocat/alpha","stargazerCount":10,"forkCount":1,
					 "primaryLanguage":{"name":"Go"},
					 "languages":{"edges":[{"size":1000,"node":{"name":"Go"}},{"size":50,"node":{"name":"Shell"}}]},
					 "defaultBranchRef":{"name":"main"}},
					{"name":"forked","nameWithOwner":"octocat/forked","isFork":true,"stargazerCount":99,
					 "languages":{"edges":[{"size":9999,"node":{"name":"C"}}]},"defaultBranchRef":{"name":"main"}}
				]}}}}`)
			return
		}
		assert.Equal(f.t, "r1", after)
		fmt.Fprint(w, `{"data":{"viewer":{"repositories":{
			"pageInfo":{"hasNextPage":false,"endCursor":"r2"},
			"nodes":[
				{"name":"beta","nameWithOwner":"octocat/beta","url":"https://github.com/octocat/beta","stargazerCount":30,"forkCount":4,
				 "primaryLanguage":{"name":"TypeScript"},
				 "languages":{"edges":[{"size":500,"node":{"name":"Go"}},{"size":2000,"node":{"name":"TypeScript"}}]},
				 "defaultBranchRef":{"name":"main"}},
				{"name":"empty","nameWithOwner":"octocat/empty","url":"https://github.com/octocat/empty","stargazerCount":1,
				 "languages":{"edges":[]},"defaultBranchRef":null}
			]}}}}`)

	case strings.HasPrefix(req.Query, "query CommitHistory"):
		assert.Equal(f.t, "U_1", req.Variables["author"], "history is filtered to the viewer")
		repo := fmt.Sprintf("%s/%s", req.Variables["owner"], req.Variables["name"])
		f.mu.Lock()
		f.historyReq = append(f.historyReq, repo+"@"+after)
		f.mu.Unlock()
		fmt.Fprint(w, historyPage(repo, after))

	default:
		f.t.Errorf("unexpected query: %.40s", req.Query)
		w.WriteHeader(http.StatusBadRequest)
	}
}

func historyPage(repo, after string) string {
	wrap := func(hasNext bool, cursor, nodes string) string {
		return fmt.Sprintf(`{"data":{"repository":{"defaultBranchRef":{"target":{"history":{
			"pageInfo":{"hasNextPage":%t,"endCursor":%q},"nodes":[%s]}}}}}}`, hasNext, cursor, nodes)
	}
	switch repo + "@" + after {
	case "octocat/alpha@":
		return wrap(true, "h1", `
			{"committedDate":"2024-03-10T23:30:00Z","additions":10,"deletions":2,"changedFilesIfAvailable":1},
			{"committedDate":"2024-03-11T09:15:00Z","additions":5,"deletions":5,"changedFilesIfAvailable":null}`)
	case "octocat/alpha@h1":
		return wrap(false, "h2", `
			{"committedDate":"2024-03-12T14:00:00Z","additions":1,"deletions":0,"changedFilesIfAvailable":3}`)
	case "octocat/beta@":
		return wrap(false, "", `
			{"committedDate":"2024-03-16T09:45:00Z","additions":100,"deletions":40,"changedFilesIfAvailable":6}`)
	}
	return wrap(false, "", "")
}

func newTestFetcher(t *testing.T, fake *fakeGraphQL, cfg FetcherConfig) *Fetcher {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, _ := newTestClient(t, srv)
	cfg.Logger = logging.Discard()
	f := NewFetcher(client, cfg)
	f.now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestFetch_AggregatesAllPages(t *testing.T) {
	fake := &fakeGraphQL{}
	f := newTestFetcher(t, fake, FetcherConfig{})

	got, err := f.Fetch(context.Background(), "gho_token")
	require.NoError(t, err)

	want := &Metrics{
		Login:        "octocat",
		TotalRepos:   3, // alpha, beta, empty; the fork is skipped
		TotalStars:   41,
		TotalForks:   5,
		TotalCommits: 4,
		Additions:    116,
		Deletions:    47,
		LinesChanged: 163,
		FilesChanged: 10,
		Languages:    map[string]int64{"Go": 1500, "Shell": 50, "TypeScript": 2000},
		TopRepos: []RepoSummary{
			{Name: "beta", URL: "https://github.com/octocat/beta", Language: "TypeScript", Stars: 30, Forks: 4},
			{Name: "alpha", URL: "https://github.com/octocat/alpha", Language: "Go", Stars: 10, Forks: 1},
			{Name: "empty", URL: "https://github.com/octocat/empty", Stars: 1},
		},
		PullRequests:  4,
		Issues:        2,
		Contributions: 321,
		FetchedAt:     time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC),
	}
	want.HourlyActivity[23] = 1
	want.HourlyActivity[9] = 2
	want.HourlyActivity[14] = 1
	want.DailyActivity[time.Sunday] = 1
	want.DailyActivity[time.Monday] = 1
	want.DailyActivity[time.Tuesday] = 1
	want.DailyActivity[time.Saturday] = 1

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"octocat/alpha@", "octocat/alpha@h1", "octocat/beta@"}, fake.historyReq)
}

func TestFetch_CommitPageCap(t *testing.T) {
	fake := &fakeGraphQL{}
	f := newTestFetcher(t, fake, FetcherConfig{MaxCommitPages: 1})

	got, err := f.Fetch(context.Background(), "gho_token")
	require.NoError(t, err)

	assert.Equal(t, 3, got.TotalCommits, "second alpha page is never requested")
	assert.Equal(t, []string{"octocat/alpha@", "octocat/beta@"}, fake.historyReq)
}

func TestFetch_BucketsUseConfiguredLocation(t *testing.T) {
	fake := &fakeGraphQL{}
	f := newTestFetcher(t, fake, FetcherConfig{Location: time.FixedZone("UTC-5", -5*3600)})

	got, err := f.Fetch(context.Background(), "gho_token")
	require.NoError(t, err)

	// 2024-03-10T23:30Z is 18:30 Sunday at UTC-5.
	assert.Equal(t, 1, got.HourlyActivity[18])
	assert.Equal(t, 0, got.HourlyActivity[23])
	// 2024-03-11T09:15Z and 2024-03-16T09:45Z are both 04:xx local.
	assert.Equal(t, 2, got.HourlyActivity[4])
}

func TestFetch_FailureSurfacesAsError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server errors exhaust retries", http.StatusInternalServerError, ErrRetriesExhausted},
		{"revoked token", http.StatusUnauthorized, ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, &fakeGraphQL{viewerStatus: tt.status}, FetcherConfig{})

			m, err := f.Fetch(context.Background(), "gho_token")
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetch_EmptyToken(t *testing.T) {
	f := NewFetcher(NewClient(ClientConfig{}), FetcherConfig{Logger: logging.Discard()})
	_, err := f.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
