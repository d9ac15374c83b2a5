package accounts

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// recordingSink captures every activity event for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []ActivityEvent
	fail   error
}

func (s *recordingSink) Record(_ context.Context, event ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) ofType(t ActivityEventType) []ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ActivityEvent
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// memProfiles is an in-memory ProfileStore / Profiles fake. Methods not
// implemented here fall through to the nil embedded interface and panic,
// which is exactly what a test calling them deserves.
type memProfiles struct {
	Profiles

	mu         sync.Mutex
	byID       map[uuid.UUID]*Profile
	failCreate error
	failList   error
}

func newMemProfiles(seed ...*Profile) *memProfiles {
	s := &memProfiles{byID: map[uuid.UUID]*Profile{}}
	for _, p := range seed {
		s.byID[p.ID] = cloneProfile(p)
	}
	return s
}

func cloneProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func (s *memProfiles) CreateProfile(_ context.Context, profile *Profile) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreate != nil {
		return nil, s.failCreate
	}

	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	now := time.Now()
	profile.CreatedAt = &now
	profile.UpdatedAt = &now
	s.byID[profile.ID] = cloneProfile(profile)
	return cloneProfile(profile), nil
}

func (s *memProfiles) GetProfile(_ context.Context, id uuid.UUID) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (s *memProfiles) GetProfileByEmail(_ context.Context, email string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.TrimSpace(strings.ToLower(email))
	for _, p := range s.byID {
		if p.Email == email {
			return cloneProfile(p), nil
		}
	}
	return nil, ErrProfileNotFound
}

func (s *memProfiles) ListProfiles(_ context.Context, filter ProfileFilter) ([]*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failList != nil {
		return nil, s.failList
	}

	var out []*Profile
	for _, p := range s.byID {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Role != "" && p.Role != filter.Role {
			continue
		}
		out = append(out, cloneProfile(p))
	}
	return out, nil
}

func (s *memProfiles) UpdateStatus(_ context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrProfileNotFound
	}

	update := buildStatusUpdate(opts...)
	if update.expectedVersion != nil && *update.expectedVersion != p.Version {
		return nil, ErrStaleVersion
	}

	p.Status = status
	if update.setSuspendedAt {
		p.SuspendedAt = update.suspendedAt
	}
	p.Version++
	now := time.Now()
	p.UpdatedAt = &now

	return cloneProfile(p), nil
}

func (s *memProfiles) DeleteProfile(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrProfileNotFound
	}
	delete(s.byID, id)
	return nil
}

// bumpVersion simulates a concurrent edit by another session.
func (s *memProfiles) bumpVersion(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.Version++
	}
}

// memRides is the ride-side twin of memProfiles.
type memRides struct {
	Rides

	mu   sync.Mutex
	byID map[uuid.UUID]*Ride
}

func newMemRides(seed ...*Ride) *memRides {
	s := &memRides{byID: map[uuid.UUID]*Ride{}}
	for _, r := range seed {
		s.byID[r.ID] = cloneRide(r)
	}
	return s
}

func cloneRide(r *Ride) *Ride {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func (s *memRides) GetRide(_ context.Context, id uuid.UUID) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return cloneRide(r), nil
}

func (s *memRides) ListRides(_ context.Context, filter RideFilter) ([]*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Ride
	for _, r := range s.byID {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.DriverID != nil && (r.DriverID == nil || *r.DriverID != *filter.DriverID) {
			continue
		}
		out = append(out, cloneRide(r))
	}
	return out, nil
}

func (s *memRides) UpdateRideStatus(_ context.Context, id uuid.UUID, status RideStatus, opts ...StatusUpdateOption) (*Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	update := buildStatusUpdate(opts...)
	if update.expectedVersion != nil && *update.expectedVersion != r.Version {
		return nil, ErrStaleVersion
	}

	r.Status = status
	r.Version++
	now := time.Now()
	r.UpdatedAt = &now

	return cloneRide(r), nil
}

// memIdentities covers the Identities methods the services exercise.
type memIdentities struct {
	Identities

	mu           sync.Mutex
	byID         map[uuid.UUID]*Identity
	failRegister error
}

func newMemIdentities(seed ...*Identity) *memIdentities {
	s := &memIdentities{byID: map[uuid.UUID]*Identity{}}
	for _, i := range seed {
		s.byID[i.ID] = cloneIdentity(i)
	}
	return s
}

func cloneIdentity(i *Identity) *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

func (s *memIdentities) Register(_ context.Context, identity *Identity) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRegister != nil {
		return nil, s.failRegister
	}

	identity.Email = strings.TrimSpace(strings.ToLower(identity.Email))
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	now := time.Now()
	identity.CreatedAt = &now
	s.byID[identity.ID] = cloneIdentity(identity)
	return cloneIdentity(identity), nil
}

func (s *memIdentities) GetByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.TrimSpace(strings.ToLower(email))
	for _, i := range s.byID {
		if i.Email == email {
			return cloneIdentity(i), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memIdentities) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound()
	}

	i, ok := s.byID[uid]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return cloneIdentity(i), nil
}

func (s *memIdentities) TrackAttemptedLogin(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byID[identity.ID]; ok {
		i.LoginAttempts++
		now := time.Now()
		i.LoginAttemptAt = &now
	}
	return nil
}

func (s *memIdentities) TrackSuccessfulLogin(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byID[identity.ID]; ok {
		now := time.Now()
		i.LoggedInAt = &now
		i.LoginAttempts = 0
		i.LoginAttemptAt = nil
	}
	return nil
}

func (s *memIdentities) MarkEmailVerifiedTx(_ context.Context, _ bun.IDB, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return repository.NewRecordNotFound()
	}
	i.EmailVerified = true
	return nil
}

func (s *memIdentities) ResetPasswordTx(_ context.Context, _ bun.IDB, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return repository.NewRecordNotFound()
	}
	i.PasswordHash = passwordHash
	i.EmailVerified = true
	return nil
}

func (s *memIdentities) DeleteIdentity(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *memIdentities) get(id uuid.UUID) *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneIdentity(s.byID[id])
}

// memActionCodes holds out-of-band codes for the verify/reset flows.
type memActionCodes struct {
	repository.Repository[*ActionCode]

	mu   sync.Mutex
	byID map[uuid.UUID]*ActionCode
}

func newMemActionCodes() *memActionCodes {
	return &memActionCodes{byID: map[uuid.UUID]*ActionCode{}}
}

func cloneActionCode(c *ActionCode) *ActionCode {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func (s *memActionCodes) Create(_ context.Context, record *ActionCode, _ ...repository.InsertCriteria) (*ActionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
	s.byID[record.ID] = cloneActionCode(record)
	return cloneActionCode(record), nil
}

func (s *memActionCodes) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*ActionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound()
	}

	c, ok := s.byID[uid]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	return cloneActionCode(c), nil
}

func (s *memActionCodes) UpdateTx(_ context.Context, _ bun.IDB, record *ActionCode, _ ...repository.UpdateCriteria) (*ActionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[record.ID]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}

	if record.Status != "" {
		c.Status = record.Status
	}
	if record.ConsumedAt != nil {
		c.ConsumedAt = record.ConsumedAt
	}
	return cloneActionCode(c), nil
}

func (s *memActionCodes) latestFor(email string, kind ActionCodeKind) *ActionCode {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *ActionCode
	for _, c := range s.byID {
		if c.Email != email || c.Kind != kind {
			continue
		}
		if latest == nil || c.CreatedAt.After(*latest.CreatedAt) {
			latest = c
		}
	}
	return cloneActionCode(latest)
}

// memRepo ties the fakes into a RepositoryManager.
type memRepo struct {
	identities *memIdentities
	profiles   *memProfiles
	rides      *memRides
	codes      *memActionCodes
}

var _ RepositoryManager = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		identities: newMemIdentities(),
		profiles:   newMemProfiles(),
		rides:      newMemRides(),
		codes:      newMemActionCodes(),
	}
}

func (m *memRepo) Validate() error { return nil }
func (m *memRepo) MustValidate()   {}

func (m *memRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *memRepo) Identities() Identities { return m.identities }
func (m *memRepo) Profiles() Profiles     { return m.profiles }
func (m *memRepo) Rides() Rides           { return m.rides }

func (m *memRepo) ActionCodes() repository.Repository[*ActionCode] { return m.codes }

func (m *memRepo) Announcements() repository.Repository[*Announcement] { return nil }

// testConfig satisfies Config for authenticator and middleware tests.
type testConfig struct {
	signingKey string
	contextKey string
}

func (c testConfig) GetSigningKey() string { return c.signingKey }

func (c testConfig) GetSigningMethod() string { return "HS256" }

func (c testConfig) GetContextKey() string {
	if c.contextKey == "" {
		return "claims"
	}
	return c.contextKey
}

func (c testConfig) GetTokenExpiration() int       { return 24 }
func (c testConfig) GetExtendedTokenDuration() int { return 168 }
func (c testConfig) GetTokenLookup() string {
	return "header:Authorization,cookie:" + c.GetContextKey()
}
func (c testConfig) GetAuthScheme() string { return "Bearer" }
func (c testConfig) GetIssuer() string     { return "sharearide-test" }
func (c testConfig) GetAudience() []string { return []string{"sharearide"} }

func testProfile(status AccountStatus, role AccountRole) *Profile {
	now := time.Now()
	return &Profile{
		ID:        uuid.New(),
		Email:     "rider@example.com",
		FirstName: "Maria",
		LastName:  "Santos",
		Mobile:    "+639171234567",
		City:      "Makati",
		Role:      role,
		Status:    status,
		CreatedAt: &now,
	}
}

func testRide(status RideStatus) *Ride {
	driver := uuid.New()
	now := time.Now()
	departure := now.Add(24 * time.Hour)
	return &Ride{
		ID:          uuid.New(),
		DriverID:    &driver,
		Origin:      "Makati",
		Destination: "Quezon City",
		DepartureAt: &departure,
		Seats:       3,
		Status:      status,
		CreatedAt:   &now,
	}
}
