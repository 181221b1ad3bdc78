package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/process-tracker/internal/cache"
	"github.com/spec-kit/process-tracker/internal/catalog"
	"github.com/spec-kit/process-tracker/internal/domain"
	"github.com/spec-kit/process-tracker/internal/events"
	"github.com/spec-kit/process-tracker/internal/repository"
)

// memDB holds every table behind the fake repositories.
type memDB struct {
	mu            sync.Mutex
	seq           int
	processes     map[string]domain.Process
	history       []domain.HistoryEntry
	assignments   map[domain.ResponsibilityKey]domain.ResponsibilityAssignment
	notifications []domain.Notification
	users         map[string]domain.User
	departments   map[string]domain.Department

	failHistoryOpen   error
	failNotifications error
	casConflict       bool
	// lostClose makes CloseOpen miss, as when a concurrent move closed the entry first.
	lostClose bool
}

type memSnapshot struct {
	processes     map[string]domain.Process
	history       []domain.HistoryEntry
	assignments   map[domain.ResponsibilityKey]domain.ResponsibilityAssignment
	notifications []domain.Notification
}

func newMemDB() *memDB {
	return &memDB{
		processes:   map[string]domain.Process{},
		assignments: map[domain.ResponsibilityKey]domain.ResponsibilityAssignment{},
		users:       map[string]domain.User{},
		departments: map[string]domain.Department{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) snapshot() memSnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	snap := memSnapshot{
		processes:     make(map[string]domain.Process, len(db.processes)),
		history:       append([]domain.HistoryEntry(nil), db.history...),
		assignments:   make(map[domain.ResponsibilityKey]domain.ResponsibilityAssignment, len(db.assignments)),
		notifications: append([]domain.Notification(nil), db.notifications...),
	}
	for k, v := range db.processes {
		snap.processes[k] = v
	}
	for k, v := range db.assignments {
		snap.assignments[k] = v
	}
	return snap
}

func (db *memDB) restore(snap memSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.processes = snap.processes
	db.history = snap.history
	db.assignments = snap.assignments
	db.notifications = snap.notifications
}

func (db *memDB) openEntries(processID string) []domain.HistoryEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.HistoryEntry
	for _, entry := range db.history {
		if entry.ProcessID == processID && entry.Open() {
			out = append(out, entry)
		}
	}
	return out
}

func (db *memDB) historyLen(processID string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, entry := range db.history {
		if entry.ProcessID == processID {
			n++
		}
	}
	return n
}

func (db *memDB) assignment(processID, departmentID string) (domain.ResponsibilityAssignment, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	a, ok := db.assignments[domain.ResponsibilityKey{ProcessID: processID, DepartmentID: departmentID}]
	return a, ok
}

func (db *memDB) notificationsFor(userID string) []domain.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.Notification
	for _, n := range db.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// memTx serializes transactions and restores the tables when fn fails.
type memTx struct {
	db *memDB
	mu sync.Mutex
}

func (t *memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.db.snapshot()
	if err := fn(ctx); err != nil {
		t.db.restore(snap)
		return err
	}
	return nil
}

type memProcessRepo struct{ db *memDB }

func (r *memProcessRepo) Create(_ context.Context, p *domain.Process) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.processes {
		if existing.ProtocolNumber == p.ProtocolNumber {
			return repository.ErrDuplicate
		}
	}
	p.ID = r.db.nextID("p")
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.db.processes[p.ID] = *p
	return nil
}

func (r *memProcessRepo) UpdateType(_ context.Context, id string, processType *string) (*domain.Process, error) {
	return r.patch(id, func(p *domain.Process) { p.ProcessType = processType })
}

func (r *memProcessRepo) UpdateStatus(_ context.Context, id string, status domain.ProcessStatus) (*domain.Process, error) {
	return r.patch(id, func(p *domain.Process) { p.Status = status })
}

func (r *memProcessRepo) patch(id string, apply func(p *domain.Process)) (*domain.Process, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.processes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	apply(&p)
	p.UpdatedAt = time.Now()
	r.db.processes[id] = p
	return &p, nil
}

func (r *memProcessRepo) UpdateIfAt(_ context.Context, p *domain.Process, expected *string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.processes[p.ID]
	if !ok || r.db.casConflict {
		return false, nil
	}
	if !sameDepartment(stored.CurrentDepartmentID, expected) {
		return false, nil
	}
	r.db.processes[p.ID] = *p
	return true, nil
}

func sameDepartment(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *memProcessRepo) GetByID(_ context.Context, id string) (*domain.Process, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.processes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r *memProcessRepo) GetByProtocol(_ context.Context, protocol string) (*domain.Process, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.processes {
		if p.ProtocolNumber == protocol {
			out := p
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memProcessRepo) List(_ context.Context, filter repository.ProcessFilter) ([]domain.Process, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Process
	for _, p := range r.db.processes {
		if len(filter.DepartmentIDs) > 0 && (p.CurrentDepartmentID == nil || !contains(filter.DepartmentIDs, *p.CurrentDepartmentID)) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, p.Status) {
			continue
		}
		if filter.ResponsibleUserID != nil && (p.ResponsibleUserID == nil || *p.ResponsibleUserID != *filter.ResponsibleUserID) {
			continue
		}
		if filter.ProcessType != nil && (p.ProcessType == nil || *p.ProcessType != *filter.ProcessType) {
			continue
		}
		if filter.SearchTerm != nil && !strings.Contains(strings.ToLower(p.ProtocolNumber), strings.ToLower(*filter.SearchTerm)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProtocolNumber < out[j].ProtocolNumber })
	return out, nil
}

func (r *memProcessRepo) DeleteNotStarted(_ context.Context, ids []string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, id := range ids {
		if p, ok := r.db.processes[id]; ok && p.Status == domain.ProcessStatusNotStarted {
			delete(r.db.processes, id)
			n++
		}
	}
	return n, nil
}

type memHistoryRepo struct{ db *memDB }

func (r *memHistoryRepo) Open(_ context.Context, entry *domain.HistoryEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failHistoryOpen != nil {
		return r.db.failHistoryOpen
	}
	for _, existing := range r.db.history {
		if existing.ProcessID == entry.ProcessID && existing.Open() {
			return repository.ErrDuplicate
		}
	}
	entry.ID = r.db.nextID("h")
	r.db.history = append(r.db.history, *entry)
	return nil
}

func (r *memHistoryRepo) CloseOpen(_ context.Context, processID string, exit time.Time, actingUserID string) (*domain.HistoryEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.lostClose {
		return nil, pgx.ErrNoRows
	}
	for i := range r.db.history {
		entry := &r.db.history[i]
		if entry.ProcessID == processID && entry.Open() {
			entry.ExitTime = &exit
			entry.ActingUserID = &actingUserID
			out := *entry
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memHistoryRepo) GetOpen(_ context.Context, processID string) (*domain.HistoryEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, entry := range r.db.history {
		if entry.ProcessID == processID && entry.Open() {
			out := entry
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memHistoryRepo) ListOpenByProcesses(_ context.Context, ids []string) ([]domain.HistoryEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.HistoryEntry
	for _, entry := range r.db.history {
		if entry.Open() && contains(ids, entry.ProcessID) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memHistoryRepo) ListByProcess(_ context.Context, processID string) ([]domain.HistoryEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.HistoryEntry
	for _, entry := range r.db.history {
		if entry.ProcessID == processID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type memResponsibilityRepo struct {
	db        *memDB
	getCalls  int
	listCalls int
}

func (r *memResponsibilityRepo) Create(_ context.Context, a *domain.ResponsibilityAssignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := domain.ResponsibilityKey{ProcessID: a.ProcessID, DepartmentID: a.DepartmentID}
	if _, ok := r.db.assignments[key]; ok {
		return errors.Join(repository.ErrDuplicate, errors.New("unique violation"))
	}
	r.db.assignments[key] = *a
	return nil
}

func (r *memResponsibilityRepo) Replace(_ context.Context, a *domain.ResponsibilityAssignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.assignments[domain.ResponsibilityKey{ProcessID: a.ProcessID, DepartmentID: a.DepartmentID}] = *a
	return nil
}

func (r *memResponsibilityRepo) Get(_ context.Context, processID, departmentID string) (*domain.ResponsibilityAssignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.getCalls++
	a, ok := r.db.assignments[domain.ResponsibilityKey{ProcessID: processID, DepartmentID: departmentID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r *memResponsibilityRepo) ListByProcesses(_ context.Context, ids []string) ([]domain.ResponsibilityAssignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.listCalls++
	var out []domain.ResponsibilityAssignment
	for _, a := range r.db.assignments {
		if contains(ids, a.ProcessID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memResponsibilityRepo) Delete(_ context.Context, processID, departmentID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := domain.ResponsibilityKey{ProcessID: processID, DepartmentID: departmentID}
	_, ok := r.db.assignments[key]
	delete(r.db.assignments, key)
	return ok, nil
}

func (r *memResponsibilityRepo) calls() (get, list int) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.getCalls, r.listCalls
}

type memNotificationRepo struct{ db *memDB }

func (r *memNotificationRepo) CreateBatch(_ context.Context, batch []domain.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failNotifications != nil {
		return r.db.failNotifications
	}
	for _, n := range batch {
		n.ID = r.db.nextID("n")
		r.db.notifications = append(r.db.notifications, n)
	}
	return nil
}

func (r *memNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]domain.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.db.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.notifications {
		if r.db.notifications[i].ID == id && r.db.notifications[i].UserID == userID {
			r.db.notifications[i].Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memNotificationRepo) MarkResponded(_ context.Context, processID, userID string, typ domain.NotificationType) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for i := range r.db.notifications {
		item := &r.db.notifications[i]
		if item.ProcessID == processID && item.UserID == userID && item.Type == typ && !item.Responded {
			item.Responded = true
			n++
		}
	}
	return n, nil
}

type memUserRepo struct{ db *memDB }

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = r.db.nextID("u")
	}
	r.db.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) Update(_ context.Context, u *domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[u.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.db.users[u.ID] = *u
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) ListActiveByDepartment(_ context.Context, departmentID string) ([]domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.User
	for _, u := range r.db.users {
		if u.Active && u.BelongsTo(departmentID) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memDepartmentRepo struct{ db *memDB }

func (r *memDepartmentRepo) Create(_ context.Context, d *domain.Department) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if d.ID == "" {
		d.ID = r.db.nextID("d")
	}
	r.db.departments[d.ID] = *d
	return nil
}

func (r *memDepartmentRepo) Update(_ context.Context, d *domain.Department) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.departments[d.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.db.departments[d.ID] = *d
	return nil
}

func (r *memDepartmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

func (r *memDepartmentRepo) ListOrdered(_ context.Context) ([]domain.Department, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]domain.Department, 0, len(r.db.departments))
	for _, d := range r.db.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsStatus(list []domain.ProcessStatus, v domain.ProcessStatus) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires every service over memDB with the pipeline
// intake(1) -> review(2, 3 days) -> legal(3, 5 days, needs type) -> done(9).
type harness struct {
	db             *memDB
	clock          *testClock
	catalog        *catalog.Catalog
	store          *cache.MemoryStore
	respRepo       *memResponsibilityRepo
	responsibility *ResponsibilityService
	notifications  *NotificationService
	movement       *MovementService
	processes      *ProcessService
	departments    *DepartmentService

	admin, alice, bob, carol, dave, erin *domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newMemDB()
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	for _, d := range []domain.Department{
		{ID: "intake", Name: "Intake", Order: 1},
		{ID: "review", Name: "Review", Order: 2, TimeLimitDays: 3},
		{ID: "legal", Name: "Legal", Order: 3, TimeLimitDays: 5, RequiresProcessType: true},
		{ID: "done", Name: "Concluded", Order: 9, IsTerminal: true},
	} {
		db.departments[d.ID] = d
	}
	deptRepo := &memDepartmentRepo{db: db}
	cat := catalog.New(deptRepo)
	require.NoError(t, cat.Refresh(context.Background()))

	h := &harness{db: db, clock: clock, catalog: cat}
	h.admin = h.addUser("admin", domain.UserProfileAdmin)
	h.alice = h.addUser("alice", domain.UserProfileUser, "intake")
	h.bob = h.addUser("bob", domain.UserProfileUser, "review")
	h.carol = h.addUser("carol", domain.UserProfileUser, "review")
	h.dave = h.addUser("dave", domain.UserProfileUser, "legal")
	h.erin = h.addUser("erin", domain.UserProfileUser, "done")

	dispatcher := events.NewInMemoryDispatcher(nil)
	h.store = cache.NewMemoryStore(clock.Now)
	h.respRepo = &memResponsibilityRepo{db: db}

	h.notifications = NewNotificationService(NotificationDependencies{
		UserRepo:         &memUserRepo{db: db},
		NotificationRepo: &memNotificationRepo{db: db},
		Dispatcher:       dispatcher,
	})
	h.notifications.RegisterHandlers()

	h.responsibility = NewResponsibilityService(ResponsibilityDependencies{
		Repo:       h.respRepo,
		Store:      h.store,
		TTL:        time.Minute,
		Notifier:   h.notifications,
		Dispatcher: dispatcher,
		Now:        clock.Now,
	})
	h.movement = NewMovementService(MovementDependencies{
		Transactor:         &memTx{db: db},
		ProcessRepo:        &memProcessRepo{db: db},
		HistoryRepo:        &memHistoryRepo{db: db},
		ResponsibilityRepo: h.respRepo,
		Catalog:            cat,
		Invalidator:        h.responsibility,
		Dispatcher:         dispatcher,
		Now:                clock.Now,
	})
	h.processes = NewProcessService(ProcessDependencies{
		ProcessRepo:    &memProcessRepo{db: db},
		HistoryRepo:    &memHistoryRepo{db: db},
		UserRepo:       &memUserRepo{db: db},
		Catalog:        cat,
		Movement:       h.movement,
		Responsibility: h.responsibility,
		Now:            clock.Now,
	})
	h.departments = NewDepartmentService(DepartmentDependencies{
		Repo:    deptRepo,
		Catalog: cat,
	})
	return h
}

func (h *harness) addUser(name string, profile domain.UserProfile, departments ...string) *domain.User {
	u := domain.User{
		ID:                  name,
		Name:                name,
		Email:               name + "@example.com",
		Active:              true,
		Profile:             profile,
		AssignedDepartments: departments,
	}
	h.db.users[u.ID] = u
	return &u
}

// newProcess registers a not-started process directly in storage.
func (h *harness) newProcess(t *testing.T, protocol string) string {
	t.Helper()
	p := &domain.Process{ProtocolNumber: protocol, Status: domain.ProcessStatusNotStarted}
	require.NoError(t, (&memProcessRepo{db: h.db}).Create(context.Background(), p))
	return p.ID
}

func (h *harness) process(t *testing.T, id string) domain.Process {
	t.Helper()
	p, err := (&memProcessRepo{db: h.db}).GetByID(context.Background(), id)
	require.NoError(t, err)
	return *p
}

func (h *harness) currentDepartment(t *testing.T, id string) string {
	t.Helper()
	p := h.process(t, id)
	require.NotNil(t, p.CurrentDepartmentID)
	return *p.CurrentDepartmentID
}
