package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/vitapersonal/authserver/internal/jobs"
	"github.com/vitapersonal/authserver/types"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "hunter22", nil)

	rec := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "Alice@Example.com",
		Password: "hunter22",
	})
	requireStatus(t, rec, http.StatusOK)

	resp := decodeBody[AuthResponse](t, rec)
	if resp.Token == "" {
		t.Error("expected a token")
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("email = %q", resp.User.Email)
	}
	if resp.User.ShowWelcomeDialog == nil {
		t.Error("self view should include show_welcome_dialog")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", "hunter22", nil)

	rec := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong",
	})
	requireStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "Invalid E-mail or password.") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	requireStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "Invalid E-mail or password.") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLoginClosedAccountRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "gone@example.com", "hunter22", func(u *types.User) {
		u.Status = types.StatusClosed
	})

	rec := env.do(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email:    "gone@example.com",
		Password: "hunter22",
	})
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestLoginWhileLoggedIn(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "hunter22", nil)
	token := env.tokenFor(t, user.ID)

	rec := env.do(t, http.MethodPost, "/auth/login", token, LoginRequest{
		Email:    "alice@example.com",
		Password: "hunter22",
	})
	requireStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "Already logged in.") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "hunter22", nil)
	token := env.tokenFor(t, user.ID)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := env.do(t, method, "/auth/logout", token, nil)
		requireStatus(t, rec, http.StatusOK)
		resp := decodeBody[ResultResponse](t, rec)
		if resp.Result != "Logged out" {
			t.Errorf("%s result = %q", method, resp.Result)
		}
	}

	rec := env.do(t, http.MethodPost, "/auth/logout", "", nil)
	requireStatus(t, rec, http.StatusUnauthorized)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "oldpass", nil)

	rec := env.do(t, http.MethodPost, "/auth/password_reset", "", PasswordResetRequestPayload{
		Email: "alice@example.com",
	})
	requireStatus(t, rec, http.StatusOK)
	resp := decodeBody[ResultResponse](t, rec)
	if resp.Result != "Please check your E-mail" {
		t.Errorf("result = %q", resp.Result)
	}

	emails := env.queue.published[jobs.ChannelEmails]
	if len(emails) != 1 {
		t.Fatalf("got %d email jobs, want 1", len(emails))
	}
	var job jobs.EmailJob
	if err := json.Unmarshal(emails[0], &job); err != nil {
		t.Fatalf("decode email job: %v", err)
	}
	if job.To != "alice@example.com" {
		t.Errorf("email to = %q", job.To)
	}

	request := env.resets.byUser[user.ID]
	if len(request.Hash) != 40 {
		t.Fatalf("hash length = %d, want 40", len(request.Hash))
	}
	if !strings.Contains(job.Body, request.Hash) {
		t.Error("email body should carry the reset link")
	}

	rec = env.do(t, http.MethodPost, "/auth/password_reset_complete", "", PasswordResetCompletePayload{
		Hash:     request.Hash,
		Password: "newpass",
	})
	requireStatus(t, rec, http.StatusOK)
	auth := decodeBody[AuthResponse](t, rec)
	if auth.Token == "" {
		t.Error("reset completion should log the user in")
	}

	updated := env.users.users[user.ID]
	if bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("newpass")) != nil {
		t.Error("password not replaced")
	}

	// Token is single-use.
	rec = env.do(t, http.MethodPost, "/auth/password_reset_complete", "", PasswordResetCompletePayload{
		Hash:     request.Hash,
		Password: "another",
	})
	requireStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "Invalid password reset hash") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPasswordResetSecondRequestInvalidatesFirst(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "oldpass", nil)

	rec := env.do(t, http.MethodPost, "/auth/password_reset", "", PasswordResetRequestPayload{Email: "alice@example.com"})
	requireStatus(t, rec, http.StatusOK)
	first := env.resets.byUser[user.ID].Hash

	rec = env.do(t, http.MethodPost, "/auth/password_reset", "", PasswordResetRequestPayload{Email: "alice@example.com"})
	requireStatus(t, rec, http.StatusOK)
	second := env.resets.byUser[user.ID].Hash

	if first == second {
		t.Fatal("second request should mint a fresh hash")
	}

	rec = env.do(t, http.MethodPost, "/auth/password_reset_complete", "", PasswordResetCompletePayload{
		Hash:     first,
		Password: "newpass",
	})
	requireStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPost, "/auth/password_reset_complete", "", PasswordResetCompletePayload{
		Hash:     second,
		Password: "newpass",
	})
	requireStatus(t, rec, http.StatusOK)
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	for _, email := range []string{"nobody@example.com", "not-an-email"} {
		rec := env.do(t, http.MethodPost, "/auth/password_reset", "", PasswordResetRequestPayload{Email: email})
		requireStatus(t, rec, http.StatusBadRequest)
		if !strings.Contains(rec.Body.String(), "Invalid E-mail.") {
			t.Errorf("%s: body = %s", email, rec.Body.String())
		}
	}
	if len(env.queue.published) != 0 {
		t.Error("no jobs should be dispatched for rejected emails")
	}
}

func TestPasswordResetCompleteShortPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice@example.com", "oldpass", nil)
	env.do(t, http.MethodPost, "/auth/password_reset", "", PasswordResetRequestPayload{Email: "alice@example.com"})
	hash := env.resets.byUser[user.ID].Hash

	rec := env.do(t, http.MethodPost, "/auth/password_reset_complete", "", PasswordResetCompletePayload{
		Hash:     hash,
		Password: "abc",
	})
	requireStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), "The password should be at least 4 characters long.") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
