package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vitapersonal/authserver/config"
	"github.com/vitapersonal/authserver/internal/jobs"
	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/internal/store"
	"github.com/vitapersonal/authserver/types"
)

const testSecret = "test-secret"

var testExternal = config.ExternalConfig{Scheme: "https", Domain: "vitapersonal.example"}

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (f *fakeUserRepo) add(user types.User) types.User {
	user.ID = f.nextID
	f.nextID++
	user.Email = strings.ToLower(user.Email)
	if user.Status == "" {
		user.Status = types.StatusActive
	}
	f.users[user.ID] = user
	return user
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	email = strings.ToLower(email)
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := f.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrDuplicateEmail
	}
	return f.add(user), nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	current, ok := f.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	email := strings.ToLower(user.Email)
	if email != current.Email {
		if _, err := f.GetByEmail(ctx, email); err == nil {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	user.Email = email
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) UpdateActivity(ctx context.Context, id int, update store.ActivityUpdate) error {
	return nil
}

func (f *fakeUserRepo) List(ctx context.Context, onlyUserID *int, offset, limit int) ([]types.User, int, error) {
	var out []types.User
	for id := 1; id < f.nextID; id++ {
		user, ok := f.users[id]
		if !ok {
			continue
		}
		if onlyUserID != nil && user.ID != *onlyUserID {
			continue
		}
		out = append(out, user)
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeUserRepo) Close(ctx context.Context, id int) error {
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Status = types.StatusClosed
	f.users[id] = user
	return nil
}

// testEnv bundles a routed handler stack over in-memory stores.
type testEnv struct {
	router    *chi.Mux
	users     *fakeUserRepo
	resets    *fakeResetRepo
	profiles  *fakeProfileRepo
	companies *fakeCompanyRepo
	queue     *captureQueue
}

type captureQueue struct {
	published map[string][][]byte
}

func (q *captureQueue) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if q.published == nil {
		q.published = map[string][][]byte{}
	}
	q.published[channel] = append(q.published[channel], data)
	return "msg", nil
}

func (q *captureQueue) Subscribe(ctx context.Context, channel string, handler jobs.Handler) error {
	return nil
}

func (q *captureQueue) Close() error { return nil }

type fakeResetRepo struct {
	byUser map[int]types.PasswordResetRequest
}

func (f *fakeResetRepo) Replace(ctx context.Context, request types.PasswordResetRequest) (types.PasswordResetRequest, error) {
	request.ID = len(f.byUser) + 1
	f.byUser[request.UserID] = request
	return request, nil
}

func (f *fakeResetRepo) GetByHash(ctx context.Context, hash string) (types.PasswordResetRequest, error) {
	for _, req := range f.byUser {
		if req.Hash == hash {
			return req, nil
		}
	}
	return types.PasswordResetRequest{}, store.ErrNotFound
}

func (f *fakeResetRepo) DeleteForUser(ctx context.Context, userID int) error {
	delete(f.byUser, userID)
	return nil
}

type fakeProfileRepo struct {
	profiles map[int]types.Profile
	nextID   int
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id int) (types.Profile, error) {
	profile, ok := f.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	return profile, nil
}

func (f *fakeProfileRepo) ListByUser(ctx context.Context, userID int) ([]types.Profile, error) {
	var out []types.Profile
	for id := 1; id < f.nextID; id++ {
		if profile, ok := f.profiles[id]; ok && profile.UserID == userID {
			out = append(out, profile)
		}
	}
	return out, nil
}

func (f *fakeProfileRepo) Create(ctx context.Context, profile types.Profile) (types.Profile, error) {
	profile.ID = f.nextID
	f.nextID++
	f.profiles[profile.ID] = profile
	return profile, nil
}

func (f *fakeProfileRepo) Update(ctx context.Context, profile types.Profile) (types.Profile, error) {
	if _, ok := f.profiles[profile.ID]; !ok {
		return types.Profile{}, store.ErrNotFound
	}
	f.profiles[profile.ID] = profile
	return profile, nil
}

type fakeCompanyRepo struct {
	companies map[int]types.Company
	roles     map[int]types.Role
	nextID    int
}

func (f *fakeCompanyRepo) GetByID(ctx context.Context, id int) (types.Company, error) {
	company, ok := f.companies[id]
	if !ok {
		return types.Company{}, store.ErrNotFound
	}
	return company, nil
}

func (f *fakeCompanyRepo) List(ctx context.Context, offset, limit int) ([]types.Company, int, error) {
	var out []types.Company
	for id := 1; id < f.nextID; id++ {
		if company, ok := f.companies[id]; ok {
			out = append(out, company)
		}
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeCompanyRepo) Create(ctx context.Context, company types.Company) (types.Company, error) {
	company.ID = f.nextID
	f.nextID++
	f.companies[company.ID] = company
	return company, nil
}

func (f *fakeCompanyRepo) Update(ctx context.Context, company types.Company) (types.Company, error) {
	if _, ok := f.companies[company.ID]; !ok {
		return types.Company{}, store.ErrNotFound
	}
	f.companies[company.ID] = company
	return company, nil
}

func (f *fakeCompanyRepo) ListRoles(ctx context.Context, companyID int) ([]types.Role, error) {
	var out []types.Role
	for id := 1; id <= len(f.roles); id++ {
		if role, ok := f.roles[id]; ok && role.CompanyID == companyID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *fakeCompanyRepo) CreateRole(ctx context.Context, role types.Role) (types.Role, error) {
	role.ID = len(f.roles) + 1
	f.roles[role.ID] = role
	return role, nil
}

func (f *fakeCompanyRepo) HasActiveRole(ctx context.Context, userID, companyID int, roleType string) (bool, error) {
	for _, role := range f.roles {
		if role.UserID == userID && role.CompanyID == companyID && role.Type == roleType && role.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userRepo := newFakeUserRepo()
	resetRepo := &fakeResetRepo{byUser: map[int]types.PasswordResetRequest{}}
	profileRepo := &fakeProfileRepo{profiles: map[int]types.Profile{}, nextID: 1}
	companyRepo := &fakeCompanyRepo{companies: map[int]types.Company{}, roles: map[int]types.Role{}, nextID: 1}
	queue := &captureQueue{}

	userService := services.NewUserService(userRepo)
	resetService := services.NewResetService(resetRepo)
	profileService := services.NewProfileService(profileRepo)
	companyService := services.NewCompanyService(companyRepo)
	activityService := services.NewActivityService(userRepo, nil, nil)
	dispatcher := jobs.NewDispatcher(queue, nil)

	auth := NewAuthMiddleware(userService, activityService, testSecret, nil)
	authHandler := NewAuthHandler(AuthHandlerConfig{
		Users:             userService,
		Resets:            resetService,
		Dispatcher:        dispatcher,
		JWTSecret:         testSecret,
		TokenTTL:          time.Hour,
		MinPasswordLength: 4,
		External:          testExternal,
		SenderName:        "VitaPersonal",
	})
	userHandler := NewUserHandler(UserHandlerConfig{
		Users:             userService,
		Activity:          activityService,
		JWTSecret:         testSecret,
		TokenTTL:          time.Hour,
		MinPasswordLength: 4,
		External:          testExternal,
	})
	profileHandler := NewProfileHandler(profileService)
	companyHandler := NewCompanyHandler(companyService)

	router := chi.NewRouter()
	router.Use(auth.Resolve)
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authHandler)
	})
	router.Route("/users", func(r chi.Router) {
		UsersRouter(r, userHandler, auth)
		ProfilesRouter(r, profileHandler, auth)
	})
	router.Route("/profiles", func(r chi.Router) {
		StandaloneProfilesRouter(r, profileHandler, auth)
	})
	router.Route("/companies", func(r chi.Router) {
		CompaniesRouter(r, companyHandler, auth)
	})

	return &testEnv{
		router:    router,
		users:     userRepo,
		resets:    resetRepo,
		profiles:  profileRepo,
		companies: companyRepo,
		queue:     queue,
	}
}

// seedUser inserts a user with a bcrypt-hashed password.
func (e *testEnv) seedUser(t *testing.T, email, password string, mutate func(*types.User)) types.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := types.User{
		Email:        email,
		PasswordHash: string(hashed),
		FirstName:    "Test",
		LastName:     "User",
		Status:       types.StatusActive,
	}
	if mutate != nil {
		mutate(&user)
	}
	return e.users.add(user)
}

func (e *testEnv) tokenFor(t *testing.T, userID int) string {
	t.Helper()
	token, err := issueToken(userID, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// do performs a JSON request against the routed stack.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d: %s", rec.Code, want, rec.Body.String())
	}
}
