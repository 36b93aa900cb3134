//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/caregrid/sentinel/internal/domain"
)

// SeedStaff inserts an active staff account and returns its id.
func (env *TestEnv) SeedStaff(name string, role domain.Role) uuid.UUID {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.New()
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO staff_accounts (id, display_name, role, active)
		VALUES ($1, $2, $3, true)`, id, name, string(role))
	if err != nil {
		env.t.Fatalf("SeedStaff: %v", err)
	}
	return id
}

// DeactivateStaff flips a staff account inactive directly in the store.
func (env *TestEnv) DeactivateStaff(id uuid.UUID) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := env.Pool.Exec(ctx,
		`UPDATE staff_accounts SET active = false WHERE id = $1`, id); err != nil {
		env.t.Fatalf("DeactivateStaff: %v", err)
	}
}

// EstablishSession seeds a staff account, initializes a monitored session
// through the API and returns the bearer token plus session id.
func (env *TestEnv) EstablishSession(name string, role domain.Role) (token, sessionID string, userID uuid.UUID) {
	env.t.Helper()
	userID = env.SeedStaff(name, role)

	resp := env.POST("/sessions", map[string]string{
		"user_id":      userID.String(),
		"role":         string(role),
		"display_name": name,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("EstablishSession: expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("EstablishSession: decode: %v", err)
	}
	return result.Token, result.SessionID, userID
}

// Classify registers a column classification through the admin API.
func (env *TestEnv) Classify(adminToken, table, column string, level domain.Level, retentionDays int) {
	env.t.Helper()
	resp := env.PUT("/classifications", map[string]interface{}{
		"table_name":     table,
		"column_name":    column,
		"level":          string(level),
		"retention_days": retentionDays,
	}, adminToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("Classify: expected 200, got %d", resp.StatusCode)
	}
}

// GET performs a GET request without authentication.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, "", nil)
}

// AuthGET performs a GET request with a bearer token.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, token, nil)
}

// POST performs a POST request with an optional bearer token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token, nil)
}

// PUT performs a PUT request with an optional bearer token.
func (env *TestEnv) PUT(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPut, path, body, token, nil)
}

// POSTWithHeaders performs a POST with extra headers (to vary client signals).
func (env *TestEnv) POSTWithHeaders(path string, body interface{}, token string, headers map[string]string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token, headers)
}

// GETWithHeaders performs a GET with extra headers.
func (env *TestEnv) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, token, headers)
}

func (env *TestEnv) do(method, path string, body interface{}, token string, headers map[string]string) *http.Response {
	env.t.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			env.t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, buf)
	if err != nil {
		env.t.Fatalf("%s %s: build request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Stable browser-like signals so the strict fingerprint holds across
	// requests unless a test overrides them.
	req.Header.Set("User-Agent", "integration-test/1.0")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Accept-Encoding", "gzip")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// CountRows returns the row count of a table, optionally filtered.
func (env *TestEnv) CountRows(table, where string, args ...interface{}) int {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		q += " WHERE " + where
	}
	var count int
	if err := env.Pool.QueryRow(ctx, q, args...).Scan(&count); err != nil {
		env.t.Fatalf("CountRows %s: %v", table, err)
	}
	return count
}
