//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/caregrid/sentinel/test/integration/testutil"
)

func recordFailure(t *testing.T, env *testutil.TestEnv) (needsCaptcha bool) {
	t.Helper()
	resp := env.POST("/login/failure", map[string]string{}, "")
	testutil.AssertStatus(t, resp, http.StatusOK)

	var result struct {
		Recorded     bool `json:"recorded"`
		NeedsCaptcha bool `json:"needs_captcha"`
	}
	testutil.DecodeJSON(t, resp, &result)
	if !result.Recorded {
		t.Fatal("failure not recorded")
	}
	return result.NeedsCaptcha
}

func TestLoginThrottleCaptchaThenBan(t *testing.T) {
	env := testutil.NewTestEnv(t)

	// Below the CAPTCHA threshold (3 in test config) nothing triggers.
	if recordFailure(t, env) {
		t.Error("first failure should not demand captcha")
	}
	recordFailure(t, env)

	// Third failure crosses the threshold.
	if !recordFailure(t, env) {
		t.Error("third failure should demand captcha")
	}

	// Two more failures cross the ban threshold (5).
	recordFailure(t, env)
	recordFailure(t, env)

	resp := env.GET("/login/status")
	testutil.AssertStatus(t, resp, http.StatusOK)

	var status struct {
		Banned         bool `json:"banned"`
		BanSecondsLeft int  `json:"ban_seconds_left"`
	}
	testutil.DecodeJSON(t, resp, &status)
	if !status.Banned {
		t.Fatal("expected identity to be banned")
	}
	if status.BanSecondsLeft <= 0 {
		t.Errorf("expected positive ban countdown, got %d", status.BanSecondsLeft)
	}

	if got := env.CountRows("login_bans", ""); got != 1 {
		t.Errorf("expected 1 ban row, got %d", got)
	}
}

func TestLoginThrottleClearOnSuccess(t *testing.T) {
	env := testutil.NewTestEnv(t)

	recordFailure(t, env)
	recordFailure(t, env)

	resp := env.POST("/login/success", map[string]string{}, "")
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	if got := env.CountRows("login_attempts", ""); got != 0 {
		t.Errorf("expected attempts cleared, got %d rows", got)
	}

	resp2 := env.GET("/login/status")
	var status struct {
		Banned       bool `json:"banned"`
		NeedsCaptcha bool `json:"needs_captcha"`
	}
	testutil.DecodeJSON(t, resp2, &status)
	if status.Banned || status.NeedsCaptcha {
		t.Errorf("cleared identity should be clean, got %+v", status)
	}
}

func TestLoginCaptchaRoundTrip(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.POST("/login/captcha", map[string]string{}, "")
	testutil.AssertStatus(t, resp, http.StatusCreated)

	var challenge struct {
		Question string `json:"question"`
	}
	testutil.DecodeJSON(t, resp, &challenge)
	if challenge.Question == "" {
		t.Fatal("expected a challenge question")
	}

	// The answer never leaves the server; fetch it from the store.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var answer int
	if err := env.Pool.QueryRow(ctx, `SELECT answer FROM captcha_challenges`).Scan(&answer); err != nil {
		t.Fatalf("read captcha answer: %v", err)
	}

	resp2 := env.POST("/login/captcha/validate", map[string]int{"answer": answer}, "")
	testutil.AssertStatus(t, resp2, http.StatusOK)

	var result struct {
		Valid bool `json:"valid"`
	}
	testutil.DecodeJSON(t, resp2, &result)
	if !result.Valid {
		t.Error("correct answer must validate")
	}

	// A challenge is single-use.
	resp3 := env.POST("/login/captcha/validate", map[string]int{"answer": answer}, "")
	var result2 struct {
		Valid bool `json:"valid"`
	}
	testutil.DecodeJSON(t, resp3, &result2)
	if result2.Valid {
		t.Error("consumed challenge must not validate twice")
	}
}

func TestLoginCaptchaWrongAnswerRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.POST("/login/captcha", map[string]string{}, "")
	resp.Body.Close()

	resp2 := env.POST("/login/captcha/validate", map[string]int{"answer": -99999}, "")
	testutil.AssertStatus(t, resp2, http.StatusOK)

	var result struct {
		Valid bool `json:"valid"`
	}
	testutil.DecodeJSON(t, resp2, &result)
	if result.Valid {
		t.Error("wrong answer must not validate")
	}
}
