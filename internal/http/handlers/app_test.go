package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vesture/internal/domain"
	"vesture/internal/middleware"
	"vesture/internal/payment"
	"vesture/internal/subscription"
	"vesture/internal/token"
)

type fakeUsers struct {
	byID    map[string]*domain.User
	history []domain.TokenHistory
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*domain.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	cp := *user
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range f.byID {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUsers) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return f.GetByID(ctx, userID)
}

func (f *fakeUsers) Credit(_ context.Context, userID string, amount, validityDays int, source string) (*domain.User, error) {
	user, ok := f.byID[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	user.TokenBalance += amount
	now := time.Now()
	if user.TokenValidUntil == nil || user.TokenValidUntil.Before(now) {
		until := now.AddDate(0, 0, validityDays)
		user.TokenValidUntil = &until
	} else {
		until := user.TokenValidUntil.AddDate(0, 0, validityDays)
		user.TokenValidUntil = &until
	}
	f.history = append(f.history, domain.TokenHistory{
		ID: int64(len(f.history) + 1), UserID: userID, Change: amount,
		Source: source, ValidityExtensionDays: validityDays, CreatedAt: now,
	})
	cp := *user
	return &cp, nil
}

func (f *fakeUsers) Debit(_ context.Context, userID string, amount int, source string) (*domain.User, bool, error) {
	user, ok := f.byID[userID]
	if !ok {
		return nil, false, nil
	}
	if user.TokenBalance < amount || !user.TokensValidAt(time.Now()) {
		return nil, false, nil
	}
	user.TokenBalance -= amount
	f.history = append(f.history, domain.TokenHistory{
		ID: int64(len(f.history) + 1), UserID: userID, Change: -amount,
		Source: source, CreatedAt: time.Now(),
	})
	cp := *user
	return &cp, true, nil
}

func (f *fakeUsers) History(_ context.Context, userID string, limit int) ([]domain.TokenHistory, error) {
	var out []domain.TokenHistory
	for i := len(f.history) - 1; i >= 0 && len(out) < limit; i-- {
		if f.history[i].UserID == userID {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

type fakePlans struct {
	plans map[int64]domain.Plan
}

func (f *fakePlans) GetByID(_ context.Context, id int64) (*domain.Plan, error) {
	plan, ok := f.plans[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return &plan, nil
}

func (f *fakePlans) List(_ context.Context) ([]domain.Plan, error) {
	out := make([]domain.Plan, 0, len(f.plans))
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

type fakeSubs struct {
	rows map[string]*domain.Subscription
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{rows: make(map[string]*domain.Subscription)}
}

func (f *fakeSubs) GetByUserID(_ context.Context, userID string) (*domain.Subscription, error) {
	sub, ok := f.rows[userID]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubs) Upsert(_ context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	cp := *sub
	if existing, ok := f.rows[sub.UserID]; ok {
		cp.ID = existing.ID
	} else {
		cp.ID = int64(len(f.rows) + 1)
	}
	f.rows[sub.UserID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSubs) UpdateStatus(_ context.Context, userID string, status domain.SubscriptionStatus, periodEnd time.Time) (*domain.Subscription, error) {
	sub, ok := f.rows[userID]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	sub.Status = status
	sub.CurrentPeriodEnd = periodEnd
	cp := *sub
	return &cp, nil
}

type fakeTxns struct {
	rows map[string]*domain.Transaction
}

func newFakeTxns() *fakeTxns {
	return &fakeTxns{rows: make(map[string]*domain.Transaction)}
}

func (f *fakeTxns) Create(_ context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	cp := *txn
	cp.ID = int64(len(f.rows) + 1)
	cp.Status = domain.TransactionStatusPending
	f.rows[cp.MerchantOrderID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeTxns) GetByMerchantOrderID(_ context.Context, merchantOrderID string) (*domain.Transaction, error) {
	txn, ok := f.rows[merchantOrderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *txn
	return &cp, nil
}

func (f *fakeTxns) MarkCompleted(_ context.Context, merchantOrderID string, gatewayTxnID, paymentMode *string, response []byte) (bool, error) {
	txn, ok := f.rows[merchantOrderID]
	if !ok || txn.Status != domain.TransactionStatusPending {
		return false, nil
	}
	txn.Status = domain.TransactionStatusCompleted
	txn.GatewayTransactionID = gatewayTxnID
	txn.PaymentMode = paymentMode
	txn.ResponsePayload = response
	return true, nil
}

func (f *fakeTxns) MarkFailed(_ context.Context, merchantOrderID string, response []byte) (bool, error) {
	txn, ok := f.rows[merchantOrderID]
	if !ok || txn.Status != domain.TransactionStatusPending {
		return false, nil
	}
	txn.Status = domain.TransactionStatusFailed
	txn.ResponsePayload = response
	return true, nil
}

type fakeModels struct {
	models map[int64]domain.TryOnModel
}

func (f *fakeModels) GetByID(_ context.Context, id int64) (*domain.TryOnModel, error) {
	m, ok := f.models[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (f *fakeModels) List(_ context.Context) ([]domain.TryOnModel, error) {
	out := make([]domain.TryOnModel, 0, len(f.models))
	for _, m := range f.models {
		out = append(out, m)
	}
	return out, nil
}

type fakeTasks struct {
	rows map[int64]*domain.Task
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{rows: make(map[int64]*domain.Task)}
}

func (f *fakeTasks) Create(_ context.Context, task *domain.Task) (*domain.Task, error) {
	cp := *task
	cp.ID = int64(len(f.rows) + 1)
	cp.CreatedAt = time.Now()
	f.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeTasks) GetByID(_ context.Context, id int64) (*domain.Task, error) {
	task, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (f *fakeTasks) ListByUser(_ context.Context, userID string) ([]domain.Task, error) {
	var out []domain.Task
	for _, task := range f.rows {
		if task.UserID == userID {
			out = append(out, *task)
		}
	}
	return out, nil
}

type fakeBatches struct {
	rows      map[int64]*domain.Batch
	generated map[int64][]domain.GeneratedImage
	createErr error
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{
		rows:      make(map[int64]*domain.Batch),
		generated: make(map[int64][]domain.GeneratedImage),
	}
}

func (f *fakeBatches) CreateWithGarments(_ context.Context, batch *domain.Batch) (*domain.Batch, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	cp := *batch
	cp.ID = int64(len(f.rows) + 1)
	cp.Status = domain.BatchStatusQueued
	cp.CreatedAt = time.Now()
	for i := range cp.Garments {
		cp.Garments[i].ID = int64(i + 1)
		cp.Garments[i].BatchID = cp.ID
	}
	f.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeBatches) GetByID(_ context.Context, id int64) (*domain.Batch, error) {
	batch, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *batch
	return &cp, nil
}

func (f *fakeBatches) ListByTask(_ context.Context, taskID int64) ([]domain.Batch, error) {
	var out []domain.Batch
	for _, b := range f.rows {
		if b.TaskID == taskID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatches) ClaimQueued(_ context.Context) (*domain.Batch, error) {
	for _, b := range f.rows {
		if b.Status == domain.BatchStatusQueued {
			b.Status = domain.BatchStatusProcessing
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBatches) MarkDone(_ context.Context, id int64) error {
	if b, ok := f.rows[id]; ok {
		b.Status = domain.BatchStatusDone
	}
	return nil
}

func (f *fakeBatches) MarkFailed(_ context.Context, id int64, reason string) error {
	if b, ok := f.rows[id]; ok {
		b.Status = domain.BatchStatusFailed
		b.Error = reason
	}
	return nil
}

func (f *fakeBatches) SaveGenerated(_ context.Context, images []domain.GeneratedImage) error {
	for _, img := range images {
		for id, batch := range f.rows {
			for _, g := range batch.Garments {
				if g.ID == img.GarmentID {
					f.generated[id] = append(f.generated[id], img)
				}
			}
		}
	}
	return nil
}

func (f *fakeBatches) ListGenerated(_ context.Context, batchID int64) ([]domain.GeneratedImage, error) {
	return f.generated[batchID], nil
}

type testApp struct {
	app     *App
	users   *fakeUsers
	plans   *fakePlans
	subs    *fakeSubs
	txns    *fakeTxns
	models  *fakeModels
	tasks   *fakeTasks
	batches *fakeBatches
}

func newTestApp() *testApp {
	users := newFakeUsers()
	plans := &fakePlans{plans: map[int64]domain.Plan{
		1: {ID: 1, Name: "starter", PriceCents: 999, Limits: domain.PlanLimits{TokenAllocation: 50, ValidityDays: 30, DurationDays: 30, TokenLimit: 50}},
		2: {ID: 2, Name: "pro", PriceCents: 1999, Limits: domain.PlanLimits{TokenAllocation: 200, ValidityDays: 60, DurationDays: 30, TokenLimit: 200}},
	}}
	subs := newFakeSubs()
	txns := newFakeTxns()
	models := &fakeModels{models: map[int64]domain.TryOnModel{
		1: {ID: 1, Name: "aria", Images: []domain.ModelImage{
			{ID: 1, ModelID: 1, PoseLabel: "front", ImageURL: "https://cdn.example.com/aria-front.png"},
			{ID: 2, ModelID: 1, PoseLabel: "side", ImageURL: "https://cdn.example.com/aria-side.png"},
		}},
	}}
	tasks := newFakeTasks()
	batches := newFakeBatches()

	ledger := token.NewLedger(users, plans, subs)
	mgr := subscription.NewManager(subs, plans)
	app := &App{
		Logger:     zerolog.Nop(),
		Users:      users,
		Plans:      plans,
		Txns:       txns,
		Models:     models,
		Tasks:      tasks,
		Batches:    batches,
		Ledger:     ledger,
		Subs:       mgr,
		Reconciler: payment.NewReconciler(txns, mgr, ledger, 1, zerolog.Nop()),
		JWTSecret:  "test-secret",
	}
	return &testApp{
		app: app, users: users, plans: plans, subs: subs,
		txns: txns, models: models, tasks: tasks, batches: batches,
	}
}

// seedUser inserts a user with tokens valid for 30 days.
func (ta *testApp) seedUser(id string, balance int) {
	until := time.Now().AddDate(0, 0, 30)
	ta.users.byID[id] = &domain.User{
		ID:              id,
		Email:           id + "@example.com",
		TokenBalance:    balance,
		TokenValidUntil: &until,
	}
}

// authedRequest builds a request carrying the user id the way AuthJWT would.
func authedRequest(method, target, userID string, body *strings.Reader) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// withURLParam attaches a chi route parameter to the request context.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
