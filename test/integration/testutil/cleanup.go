//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates all tables in dependency-safe order. Retention policy
// seed rows are restored afterwards so retention tests see the defaults.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"event_outbox",
		"data_access_audit",
		"download_activity",
		"export_approval_requests",
		"data_classification",
		"dlp_config",
		"privilege_escalation_tracking",
		"captcha_challenges",
		"login_bans",
		"login_attempts",
		"propagation_incidents",
		"blocked_sessions",
		"session_tracking",
		"staff_accounts",
	}

	for _, table := range tables {
		if _, err := env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			env.t.Fatalf("CleanAll: truncate %s: %v", table, err)
		}
	}

	_, err := env.Pool.Exec(ctx, `
		UPDATE retention_policies SET last_executed = NULL`)
	if err != nil {
		env.t.Fatalf("CleanAll: reset retention policies: %v", err)
	}
}
