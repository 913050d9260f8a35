package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/sakif/devstats/internal/ai"
	"github.com/sakif/devstats/internal/apperror"
	"github.com/sakif/devstats/internal/billing"
	"github.com/sakif/devstats/internal/github"
	"github.com/sakif/devstats/internal/model"
	"github.com/sakif/devstats/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// In-memory repositories. Every fake locks because the dashboard test runs
// them from several goroutines. Set the *Err fields to simulate failures.

var (
	_ repository.UserRepository         = (*fakeUserRepo)(nil)
	_ repository.AccountRepository      = (*fakeAccountRepo)(nil)
	_ repository.GithubTokenRepository  = (*fakeTokenRepo)(nil)
	_ repository.SubscriptionRepository = (*fakeSubRepo)(nil)
	_ repository.PortfolioRepository    = (*fakePortfolioRepo)(nil)
	_ repository.ContactRepository      = (*fakeContactRepo)(nil)
	_ repository.WebhookEventRepository = (*fakeEventRepo)(nil)
	_ billing.Provider                  = (*fakeProvider)(nil)
	_ ai.Model                          = (*fakeModel)(nil)
	_ MetricsFetcher                    = (*fakeFetcher)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]*model.User
	nextID    int
	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if u.Email != "" {
		for _, other := range f.users {
			if other.Email == u.Email {
				return apperror.ConflictCode("email_taken", "email already registered")
			}
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if email != "" && u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) Update(ctx context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts []model.Account
}

func (f *fakeAccountRepo) Link(ctx context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Provider == a.Provider && existing.ProviderAccountID == a.ProviderAccountID {
			if existing.UserID != a.UserID {
				return apperror.ConflictCode("account_linked_elsewhere", "linked to another user")
			}
			return nil
		}
	}
	f.accounts = append(f.accounts, *a)
	return nil
}

func (f *fakeAccountRepo) GetByProviderAccount(ctx context.Context, provider, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Provider == provider && a.ProviderAccountID == id {
			return &a, nil
		}
	}
	return nil, apperror.NotFound("account", id)
}

func (f *fakeAccountRepo) GetByUser(ctx context.Context, userID, provider string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Provider == provider && a.UserID == userID {
			return &a, nil
		}
	}
	return nil, apperror.NotFound("account", userID)
}

func (f *fakeAccountRepo) Delete(ctx context.Context, userID, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.accounts[:0]
	for _, a := range f.accounts {
		if a.UserID != userID || a.Provider != provider {
			kept = append(kept, a)
		}
	}
	f.accounts = kept
	return nil
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]model.GithubToken
	getErr error
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]model.GithubToken)}
}

func (f *fakeTokenRepo) Upsert(ctx context.Context, t *model.GithubToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.UpdatedAt = time.Now()
	f.tokens[t.UserID] = *t
	return nil
}

func (f *fakeTokenRepo) Get(ctx context.Context, userID string) (*model.GithubToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tokens[userID]
	if !ok {
		return nil, apperror.NotFound("github token", userID)
	}
	return &t, nil
}

func (f *fakeTokenRepo) Delete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, userID)
	return nil
}

type fakeSubRepo struct {
	mu   sync.Mutex
	subs map[string]model.Subscription // keyed by user id
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{subs: make(map[string]model.Subscription)}
}

func (f *fakeSubRepo) GetByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[userID]
	if !ok {
		return nil, apperror.NotFound("subscription", userID)
	}
	return &s, nil
}

func (f *fakeSubRepo) GetByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.CustomerID == customerID {
			return &s, nil
		}
	}
	return nil, apperror.NotFound("subscription", customerID)
}

func (f *fakeSubRepo) Upsert(ctx context.Context, s *model.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[s.UserID] = *s
	return nil
}

func (f *fakeSubRepo) setPro(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[userID] = model.Subscription{
		UserID: userID, CustomerID: "cus_" + userID, Plan: model.PlanPro, Status: model.StatusActive,
	}
}

type fakePortfolioRepo struct {
	mu         sync.Mutex
	portfolios map[string]model.Portfolio // keyed by user id
}

func newFakePortfolioRepo() *fakePortfolioRepo {
	return &fakePortfolioRepo{portfolios: make(map[string]model.Portfolio)}
}

func (f *fakePortfolioRepo) GetByUserID(ctx context.Context, userID string) (*model.Portfolio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.portfolios[userID]
	if !ok {
		return nil, apperror.NotFound("portfolio", userID)
	}
	return &p, nil
}

func (f *fakePortfolioRepo) GetBySlug(ctx context.Context, slug string) (*model.Portfolio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.portfolios {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("portfolio", slug)
}

func (f *fakePortfolioRepo) Upsert(ctx context.Context, p *model.Portfolio) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, other := range f.portfolios {
		if other.Slug == p.Slug && uid != p.UserID {
			return apperror.ConflictCode("slug_taken", "slug is taken")
		}
	}
	f.portfolios[p.UserID] = *p
	return nil
}

func (f *fakePortfolioRepo) Delete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.portfolios[userID]; !ok {
		return apperror.NotFound("portfolio", userID)
	}
	delete(f.portfolios, userID)
	return nil
}

type fakeContactRepo struct {
	msgs     []model.ContactMessage
	lastOpts repository.ListOptions
}

func (f *fakeContactRepo) Create(ctx context.Context, m *model.ContactMessage) error {
	m.ID = fmt.Sprintf("msg-%d", len(f.msgs)+1)
	f.msgs = append(f.msgs, *m)
	return nil
}

func (f *fakeContactRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.ContactMessage, error) {
	f.lastOpts = opts
	return f.msgs, nil
}

type fakeEventRepo struct {
	seen map[string]string
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{seen: make(map[string]string)}
}

func (f *fakeEventRepo) Processed(ctx context.Context, id string) (bool, error) {
	_, ok := f.seen[id]
	return ok, nil
}

func (f *fakeEventRepo) Record(ctx context.Context, id, typ string) error {
	f.seen[id] = typ
	return nil
}

// fakeProvider returns canned sessions and hands out whatever event is
// queued in next, treating signature "bad" as a forgery.
type fakeProvider struct {
	next        billing.Event
	checkoutErr error
	lastParams  billing.CheckoutParams
	portalFor   string
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error) {
	f.lastParams = p
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return "https://checkout.example/session", nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.portalFor = customerID
	return "https://billing.example/portal", nil
}

func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (billing.Event, error) {
	if signature == "bad" {
		return billing.Event{}, billing.ErrInvalidSignature
	}
	return f.next, nil
}

type fakeFetcher struct {
	mu        sync.Mutex
	metrics   *github.Metrics
	err       error
	lastToken string
}

func (f *fakeFetcher) Fetch(ctx context.Context, token string) (*github.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

type fakeModel struct {
	out        string
	err        error
	lastSystem string
	lastPrompt string
	calls      int
}

func (f *fakeModel) Name() string { return "fake:model" }

func (f *fakeModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.out, f.err
}

// sampleMetrics is a small but fully populated record.
func sampleMetrics() *github.Metrics {
	m := github.DefaultMetrics()
	m.Login = "octocat"
	m.TotalRepos = 3
	m.TotalStars = 120
	m.TotalCommits = 42
	m.Additions = 1000
	m.Deletions = 200
	m.LinesChanged = 1200
	m.Languages = map[string]int64{"Go": 7500, "TypeScript": 2500}
	m.HourlyActivity[22] = 30
	m.HourlyActivity[9] = 12
	m.DailyActivity[6] = 20
	m.TopRepos = []github.RepoSummary{{Name: "hello-world", Stars: 100, Language: "Go", Description: "first repo"}}
	return m
}
