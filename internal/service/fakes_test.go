package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/model"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/tenant"
)

// fakeTx carries the tenant a fake session is bound to. Only the fake store
// looks at it; any real pgx call on it panics.
type fakeTx struct {
	pgx.Tx
	tenant string
}

// memTenant is one tenant schema held in memory.
type memTenant struct {
	users         map[string]model.User
	forms         map[string]string
	notifications map[int64]model.Notification
	receipts      map[int64]map[string]bool
	writes        []string
	nextID        int64
	clock         time.Time
}

func newMemTenant() *memTenant {
	return &memTenant{
		users:         make(map[string]model.User),
		forms:         make(map[string]string),
		notifications: make(map[int64]model.Notification),
		receipts:      make(map[int64]map[string]bool),
		clock:         time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (t *memTenant) clone() *memTenant {
	c := newMemTenant()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.forms {
		c.forms[k] = v
	}
	for k, v := range t.notifications {
		c.notifications[k] = v
	}
	for k, v := range t.receipts {
		set := make(map[string]bool, len(v))
		for u := range v {
			set[u] = true
		}
		c.receipts[k] = set
	}
	c.writes = append([]string(nil), t.writes...)
	c.nextID = t.nextID
	c.clock = t.clock
	return c
}

// memStore implements store.NotificationStore over per-tenant maps.
type memStore struct {
	mu      sync.Mutex
	tenants map[string]*memTenant
	// failCreateAfter makes CreateNotification fail once this many rows were created; 0 disables.
	failCreateAfter int
	created         int
}

func newMemStore(tenants ...string) *memStore {
	s := &memStore{tenants: make(map[string]*memTenant)}
	for _, t := range tenants {
		s.tenants[t] = newMemTenant()
	}
	return s
}

var _ store.NotificationStore = (*memStore)(nil)

func (s *memStore) tenantOf(db store.DBTX) *memTenant {
	tx, ok := db.(*fakeTx)
	if !ok {
		panic("memStore used outside a fake session")
	}
	return s.tenants[tx.tenant]
}

func (s *memStore) addUser(tenantID, userID string, role model.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID].users[userID] = model.User{UserID: userID, Role: role, FullName: userID}
}

func (s *memStore) addForm(tenantID, formID, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID].forms[formID] = title
}

// businessWrite stands in for the collaborator's own write in a session.
func (s *memStore) businessWrite(db store.DBTX, what string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantOf(db)
	t.writes = append(t.writes, what)
}

func (s *memStore) snapshot(tenantID string) *memTenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenants[tenantID].clone()
}

func (s *memStore) restore(tenantID string, snap *memTenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenantID] = snap
}

func (s *memStore) notification(tenantID string, id int64) model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenants[tenantID].notifications[id]
}

func (s *memStore) receiptCount(tenantID string, id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tenants[tenantID].receipts[id])
}

func (s *memStore) notificationCount(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tenants[tenantID].notifications)
}

func (s *memStore) CreateNotification(ctx context.Context, db store.DBTX, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreateAfter > 0 && s.created >= s.failCreateAfter {
		return fmt.Errorf("failed to insert notification: injected failure")
	}
	s.created++

	t := s.tenantOf(db)
	t.nextID++
	t.clock = t.clock.Add(time.Second)
	n.NotificationID = t.nextID
	n.CreatedAt = t.clock
	n.IsRead = false
	t.notifications[n.NotificationID] = *n
	return nil
}

func (s *memStore) GetNotificationForUpdate(ctx context.Context, db store.DBTX, id int64) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.tenantOf(db).notifications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &n, nil
}

func (s *memStore) MarkRead(ctx context.Context, db store.DBTX, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantOf(db)
	n, ok := t.notifications[id]
	if !ok {
		return store.ErrNotFound
	}
	n.IsRead = true
	t.notifications[id] = n
	return nil
}

func (s *memStore) InsertReadReceipt(ctx context.Context, db store.DBTX, id int64, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantOf(db)
	if t.receipts[id] == nil {
		t.receipts[id] = make(map[string]bool)
	}
	if t.receipts[id][userID] {
		return false, nil
	}
	t.receipts[id][userID] = true
	return true, nil
}

func (s *memStore) HasReadReceipt(ctx context.Context, db store.DBTX, id int64, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantOf(db).receipts[id][userID], nil
}

func (s *memStore) CountAcknowledged(ctx context.Context, db store.DBTX, id int64, audience model.Audience) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantOf(db)
	var count int64
	for userID := range t.receipts[id] {
		if u, ok := t.users[userID]; ok && audience.Includes(u.Role) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) DeleteReadReceipts(ctx context.Context, db store.DBTX, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantOf(db)
	n := int64(len(t.receipts[id]))
	delete(t.receipts, id)
	return n, nil
}

func (s *memStore) GetUser(ctx context.Context, db store.DBTX, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.tenantOf(db).users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *memStore) CountAudience(ctx context.Context, db store.DBTX, audience model.Audience) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, u := range s.tenantOf(db).users {
		if audience.Includes(u.Role) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) visible(t *memTenant, filter store.VisibilityFilter) []*model.NotificationView {
	views := make([]*model.NotificationView, 0)
	for _, n := range t.notifications {
		if !(n.AddressedTo(filter.UserID) || (filter.IncludeBroadcasts && n.IsBroadcast())) {
			continue
		}
		var formTitle *string
		if n.FormID != nil {
			if title, ok := t.forms[*n.FormID]; ok {
				formTitle = &title
			}
		}
		view := model.NewNotificationView(n, formTitle, t.receipts[n.NotificationID][filter.UserID])
		if filter.Status.Matches(view.ReadState) {
			views = append(views, view)
		}
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].NotificationID > views[j].NotificationID
	})
	return views
}

func (s *memStore) ListVisible(ctx context.Context, db store.DBTX, filter store.VisibilityFilter) ([]*model.NotificationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := s.visible(s.tenantOf(db), filter)
	if filter.Offset >= len(views) {
		return []*model.NotificationView{}, nil
	}
	views = views[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(views) {
		views = views[:filter.Limit]
	}
	return views, nil
}

func (s *memStore) CountVisible(ctx context.Context, db store.DBTX, filter store.VisibilityFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.visible(s.tenantOf(db), filter))), nil
}

// fakeSessions serializes sessions like the row locks would and restores
// the tenant snapshot on error or panic.
type fakeSessions struct {
	mu          sync.Mutex
	store       *memStore
	unavailable bool
	sessions    int
}

func newFakeSessions(s *memStore) *fakeSessions {
	return &fakeSessions{store: s}
}

var _ SessionRunner = (*fakeSessions)(nil)

func (f *fakeSessions) WithSession(ctx context.Context, tenantID string, fn tenant.SessionFunc) error {
	if err := tenant.ValidateSchemaName(tenantID); err != nil {
		return err
	}
	if f.unavailable {
		return apperrors.TenantUnavailable("no database connection available", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++

	if _, ok := f.store.tenants[tenantID]; !ok {
		return apperrors.TenantUnavailable(fmt.Sprintf("tenant %q is not provisioned", tenantID), nil)
	}

	snap := f.store.snapshot(tenantID)
	defer func() {
		if p := recover(); p != nil {
			f.store.restore(tenantID, snap)
			panic(p)
		}
	}()

	if err := fn(ctx, &fakeTx{tenant: tenantID}); err != nil {
		f.store.restore(tenantID, snap)
		return err
	}
	return nil
}
