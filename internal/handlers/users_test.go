package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/vitapersonal/authserver/types"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/users", "", RegisterRequest{
		Email:     "New@Example.com",
		Password:  "hunter22",
		FirstName: "New",
		LastName:  "User",
		Phone:     "+972500000000",
	})
	requireStatus(t, rec, http.StatusCreated)

	resp := decodeBody[AuthResponse](t, rec)
	if resp.Token == "" {
		t.Error("registration should log the user in")
	}
	if resp.User.Email != "new@example.com" {
		t.Errorf("email = %q, want lowercased", resp.User.Email)
	}
	if resp.User.ShowWelcomeDialog == nil || !*resp.User.ShowWelcomeDialog {
		t.Error("new accounts should show the welcome dialog")
	}
	if resp.User.Status != types.StatusActive {
		t.Errorf("status = %q", resp.User.Status)
	}

	stored := env.users.users[resp.User.ID]
	if stored.PasswordHash == "hunter22" || stored.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
}

func TestRegisterWhileAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "root@example.com", "hunter22", func(u *types.User) {
		u.IsSuperuser = true
	})

	// Account creation stays open to authenticated callers: admins
	// provision accounts for other people.
	rec := env.do(t, http.MethodPost, "/users", env.tokenFor(t, admin.ID), RegisterRequest{
		Email:     "provisioned@example.com",
		Password:  "hunter22",
		FirstName: "Provisioned",
		LastName:  "User",
	})
	requireStatus(t, rec, http.StatusCreated)

	// The creator keeps their own session: no token is issued.
	if strings.Contains(rec.Body.String(), `"token"`) {
		t.Error("provisioning an account must not log the creator in as it")
	}
	created := decodeBody[UserResponse](t, rec)
	if created.Email != "provisioned@example.com" {
		t.Errorf("email = %q", created.Email)
	}

	// The new account works on its own credentials.
	rec = env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "provisioned@example.com",
		Password: "hunter22",
	})
	requireStatus(t, rec, http.StatusOK)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/users", "", RegisterRequest{
		Email:    "bad",
		Password: "ab",
	})
	requireStatus(t, rec, http.StatusBadRequest)

	body := rec.Body.String()
	for _, want := range []string{
		"Invalid E-mail.",
		"First name - This field is required.",
		"Last name - This field is required.",
		"The password should be at least 4 characters long.",
		"errors_display",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "hunter22", nil)

	rec := env.do(t, http.MethodPost, "/users", "", RegisterRequest{
		Email:     "ALICE@example.com",
		Password:  "hunter22",
		FirstName: "Alice",
		LastName:  "Again",
	})
	requireStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "A user with this E-mail already exists.") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGetUserMeAlias(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "hunter22", nil)
	token := env.tokenFor(t, user.ID)

	rec := env.do(t, http.MethodGet, "/users/me", token, nil)
	requireStatus(t, rec, http.StatusOK)
	resp := decodeBody[UserResponse](t, rec)
	if resp.ID != user.ID {
		t.Errorf("ID = %d, want %d", resp.ID, user.ID)
	}
}

func TestGetUserMeAnonymous(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/users/me", "", nil)
	requireStatus(t, rec, http.StatusUnauthorized)
}

func TestGetUserVisibility(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice@example.com", "hunter22", func(u *types.User) {
		u.RegistrationIP = "203.0.113.9"
		u.LastIP = "203.0.113.10"
	})
	staff := env.seedUser(t, "staff@example.com", "hunter22", func(u *types.User) {
		u.IsStaff = true
	})
	super := env.seedUser(t, "root@example.com", "hunter22", func(u *types.User) {
		u.IsSuperuser = true
	})

	// Staff see the record but not the bookkeeping fields.
	rec := env.do(t, http.MethodGet, "/users/1", env.tokenFor(t, staff.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), "registration_ip") {
		t.Error("staff view should hide registration_ip")
	}
	if strings.Contains(rec.Body.String(), "show_welcome_dialog") {
		t.Error("staff view should hide show_welcome_dialog")
	}

	// Owner and superuser see everything.
	for _, id := range []int{alice.ID, super.ID} {
		rec = env.do(t, http.MethodGet, "/users/1", env.tokenFor(t, id), nil)
		requireStatus(t, rec, http.StatusOK)
		if !strings.Contains(rec.Body.String(), "registration_ip") {
			t.Errorf("viewer %d should see registration_ip", id)
		}
	}

	if strings.Contains(rec.Body.String(), "password") {
		t.Error("password material must never be serialized")
	}
}

func TestGetUserForbiddenForOtherUser(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "hunter22", nil)
	bob := env.seedUser(t, "bob@example.com", "hunter22", nil)

	rec := env.do(t, http.MethodGet, "/users/1", env.tokenFor(t, bob.ID), nil)
	requireStatus(t, rec, http.StatusForbidden)
}

func TestListUsersScoping(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice@example.com", "hunter22", nil)
	env.seedUser(t, "bob@example.com", "hunter22", nil)
	staff := env.seedUser(t, "staff@example.com", "hunter22", func(u *types.User) {
		u.IsStaff = true
	})

	rec := env.do(t, http.MethodGet, "/users", env.tokenFor(t, alice.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	resp := decodeBody[ListUsersResponse](t, rec)
	if len(resp.Users) != 1 || resp.Users[0].ID != alice.ID {
		t.Errorf("regular user should only see their own record, got %d records", len(resp.Users))
	}

	rec = env.do(t, http.MethodGet, "/users", env.tokenFor(t, staff.ID), nil)
	requireStatus(t, rec, http.StatusOK)
	resp = decodeBody[ListUsersResponse](t, rec)
	if len(resp.Users) != 3 {
		t.Errorf("staff should see all records, got %d", len(resp.Users))
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
}

func TestListUsersAnonymous(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "hunter22", nil)

	// Anonymous listing is allowed but scoped to nothing.
	rec := env.do(t, http.MethodGet, "/users", "", nil)
	requireStatus(t, rec, http.StatusOK)
	resp := decodeBody[ListUsersResponse](t, rec)
	if len(resp.Users) != 0 {
		t.Errorf("anonymous listing should be empty, got %d records", len(resp.Users))
	}
}

func TestUpdateUserPartial(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "hunter22", nil)
	token := env.tokenFor(t, user.ID)

	first := "Alicia"
	show := false
	rec := env.do(t, http.MethodPatch, "/users/me", token, UpdateUserRequest{
		FirstName:         &first,
		ShowWelcomeDialog: &show,
	})
	requireStatus(t, rec, http.StatusOK)

	resp := decodeBody[UserResponse](t, rec)
	if resp.FirstName != "Alicia" {
		t.Errorf("first name = %q", resp.FirstName)
	}
	if resp.LastName != "User" {
		t.Errorf("untouched field changed: last name = %q", resp.LastName)
	}
	if resp.ShowWelcomeDialog == nil || *resp.ShowWelcomeDialog {
		t.Error("show_welcome_dialog should be false")
	}
}

func TestUpdateUserNamesRequired(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "hunter22", nil)
	token := env.tokenFor(t, user.ID)

	// A full update must carry both names.
	email := "alice@example.com"
	rec := env.do(t, http.MethodPut, "/users/me", token, UpdateUserRequest{
		Email: &email,
	})
	requireStatus(t, rec, http.StatusBadRequest)
	body := rec.Body.String()
	for _, want := range []string{
		"First name - This field is required.",
		"Last name - This field is required.",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}

	// A partial update may omit names but never clears them.
	empty := ""
	rec = env.do(t, http.MethodPatch, "/users/me", token, UpdateUserRequest{
		FirstName: &empty,
	})
	requireStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "First name - This field is required.") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if env.users.users[user.ID].FirstName == "" {
		t.Error("first name must not be cleared")
	}
}

func TestUpdateOtherUserForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "hunter22", nil)
	staff := env.seedUser(t, "staff@example.com", "hunter22", func(u *types.User) {
		u.IsStaff = true
	})

	first := "Hacked"
	rec := env.do(t, http.MethodPatch, "/users/1", env.tokenFor(t, staff.ID), UpdateUserRequest{
		FirstName: &first,
	})
	requireStatus(t, rec, http.StatusForbidden)
}

func TestCloseUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice@example.com", "hunter22", nil)
	super := env.seedUser(t, "root@example.com", "hunter22", func(u *types.User) {
		u.IsSuperuser = true
	})

	// Only superusers may close accounts, including their own target.
	rec := env.do(t, http.MethodPost, "/users/1/close", env.tokenFor(t, alice.ID), nil)
	requireStatus(t, rec, http.StatusForbidden)

	rec = env.do(t, http.MethodPost, "/users/1/close", env.tokenFor(t, super.ID), nil)
	requireStatus(t, rec, http.StatusOK)

	if env.users.users[alice.ID].Status != types.StatusClosed {
		t.Errorf("status = %q, want closed", env.users.users[alice.ID].Status)
	}

	// The closed account can no longer authenticate.
	rec = env.do(t, http.MethodGet, "/users/me", env.tokenFor(t, alice.ID), nil)
	requireStatus(t, rec, http.StatusUnauthorized)
}
