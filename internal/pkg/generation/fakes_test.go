package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
)

// fakeJobs is an in-memory GenerationJobRepository.
type fakeJobs struct {
	mu     sync.Mutex
	nextID uint
	jobs   map[uint]*models.GenerationJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[uint]*models.GenerationJob)}
}

func (f *fakeJobs) Create(job *models.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	job.ID = f.nextID
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(id uint) (*models.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (f *fakeJobs) GetByUUID(uuid string) (*models.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.UUID == uuid {
			cp := *job
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeJobs) GetByUserID(userID uint, offset, limit int) ([]models.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GenerationJob
	for _, job := range f.jobs {
		if job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobs) Update(job *models.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) CountActiveByUser(userID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.UserID == userID && !job.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (f *fakeJobs) ListActive(limit int) ([]models.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.GenerationJob
	for id := uint(1); id <= f.nextID; id++ {
		job, ok := f.jobs[id]
		if !ok || job.IsTerminal() {
			continue
		}
		out = append(out, *job)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJobs) TransitionStatus(id uint, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range fromStatuses {
		if job.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	for col, val := range updates {
		switch col {
		case "status":
			job.Status = val.(string)
		case "error_code":
			job.ErrorCode = val.(string)
		case "error_message":
			job.ErrorMessage = val.(string)
		case "temp_result_url":
			job.TempResultURL = val.(string)
		case "permanent_result_url":
			job.PermanentResultURL = val.(string)
		case "completed_at":
			t := val.(time.Time)
			job.CompletedAt = &t
		case "external_ref":
			job.ExternalRef = val.(string)
		}
	}
	return true, nil
}

func (f *fakeJobs) Count() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.jobs)), nil
}

func (f *fakeJobs) CountByStatus(status string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

// fakeLedgerRepo is a minimal in-memory ledger.Repository. Consumption order
// is insertion order, which is enough for the orchestration tests; ordering
// itself is covered by the ledger package tests.
type fakeLedgerRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   []*models.CreditTransaction

	// failInserts makes the next N InsertIfNotExists calls error, for
	// exercising refund retry behavior.
	failInserts int
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{}
}

func (f *fakeLedgerRepo) grant(userID uint, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows = append(f.rows, &models.CreditTransaction{
		ID:              f.nextID,
		UserID:          userID,
		Amount:          amount,
		RemainingAmount: amount,
		TransactionType: models.TransactionTypeRefill,
		RelatedEntityID: "test:grant",
	})
}

func (f *fakeLedgerRepo) SumSpendable(userID uint, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, row := range f.rows {
		if row.UserID == userID && row.IsSpendable(now) {
			sum += row.RemainingAmount
		}
	}
	return sum, nil
}

func (f *fakeLedgerRepo) ListSpendable(userID uint, now time.Time) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditTransaction
	for _, row := range f.rows {
		if row.UserID == userID && row.IsSpendable(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) Debit(userID uint, amount int64, reason, relatedEntityID string, now time.Time) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var spendable int64
	for _, row := range f.rows {
		if row.UserID == userID && row.IsSpendable(now) {
			spendable += row.RemainingAmount
		}
	}
	if spendable < amount {
		return nil, ledger.ErrInsufficientCredits
	}
	left := amount
	for _, row := range f.rows {
		if left == 0 {
			break
		}
		if row.UserID != userID || !row.IsSpendable(now) {
			continue
		}
		take := row.RemainingAmount
		if take > left {
			take = left
		}
		row.RemainingAmount -= take
		left -= take
	}
	f.nextID++
	debit := &models.CreditTransaction{
		ID:              f.nextID,
		UserID:          userID,
		Amount:          -amount,
		TransactionType: models.TransactionTypeDebit,
		RelatedEntityID: relatedEntityID,
		Reason:          reason,
	}
	f.rows = append(f.rows, debit)
	return debit, nil
}

func (f *fakeLedgerRepo) Insert(row *models.CreditTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	row.ID = f.nextID
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeLedgerRepo) InsertIfNotExists(row *models.CreditTransaction) (bool, *models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInserts > 0 {
		f.failInserts--
		return false, nil, errors.New("ledger insert failed")
	}
	for _, existing := range f.rows {
		if existing.TransactionType == row.TransactionType && existing.RelatedEntityID == row.RelatedEntityID {
			return false, existing, nil
		}
	}
	f.nextID++
	row.ID = f.nextID
	f.rows = append(f.rows, row)
	return true, row, nil
}

func (f *fakeLedgerRepo) GetByID(id uint) (*models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeLedgerRepo) MarkFrozen(id uint, frozenUntil time.Time, resumeExpiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			row.IsFrozen = true
			row.FrozenUntil = &frozenUntil
			row.ExpiresAt = resumeExpiresAt
		}
	}
	return nil
}

func (f *fakeLedgerRepo) UnfreezeDue(userID uint, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeLedgerRepo) UnfreezeAll(userID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, row := range f.rows {
		if row.UserID == userID && row.IsFrozen {
			row.IsFrozen = false
			row.FrozenUntil = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeLedgerRepo) ListByUser(userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CreditTransaction
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) refundCount(relatedEntityID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if row.TransactionType == models.TransactionTypeRefund && row.RelatedEntityID == relatedEntityID {
			n++
		}
	}
	return n
}

// fakeClient is a programmable external service client.
type fakeClient struct {
	mu          sync.Mutex
	submitFn    func(req SubmitRequest) (string, error)
	pollFn      func(externalRef string) (*PollResponse, error)
	fetchFn     func(resultURL string) ([]byte, string, error)
	pollCalls   int
	submitCalls int
	fetchCalls  int
}

func (c *fakeClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	c.mu.Lock()
	c.submitCalls++
	fn := c.submitFn
	c.mu.Unlock()
	if fn == nil {
		return "ext-ref-1", nil
	}
	return fn(req)
}

func (c *fakeClient) Poll(ctx context.Context, externalRef string) (*PollResponse, error) {
	c.mu.Lock()
	c.pollCalls++
	fn := c.pollFn
	c.mu.Unlock()
	if fn == nil {
		return &PollResponse{Status: ExternalStatusProcessing}, nil
	}
	return fn(externalRef)
}

func (c *fakeClient) FetchResult(ctx context.Context, resultURL string) ([]byte, string, error) {
	c.mu.Lock()
	c.fetchCalls++
	fn := c.fetchFn
	c.mu.Unlock()
	if fn == nil {
		return []byte("result-bytes"), "video/mp4", nil
	}
	return fn(resultURL)
}

// fakeStore records stored results and hands back deterministic URLs.
type fakeStore struct {
	mu     sync.Mutex
	stored map[string][]byte
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{stored: make(map[string][]byte)}
}

func (s *fakeStore) StoreResult(ctx context.Context, jobUUID string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.stored[jobUUID] = data
	return "https://cdn.example.com/results/" + jobUUID, nil
}

// fakeLocker hands the lease out according to its held flag.
type fakeLocker struct {
	held bool
}

func (l *fakeLocker) Acquire(key, holder string, ttl time.Duration) (bool, error) {
	return !l.held, nil
}

func (l *fakeLocker) Release(key string) error {
	return nil
}
