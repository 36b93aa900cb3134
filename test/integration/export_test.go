//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/test/integration/testutil"
)

type exportResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Classification string `json:"classification"`
	AutoApproved   bool   `json:"auto_approved"`
}

func requestExport(t *testing.T, env *testutil.TestEnv, token string, tables []string) (exportResponse, int) {
	t.Helper()
	resp := env.POST("/exports", map[string]interface{}{
		"export_type":   "csv",
		"tables":        tables,
		"justification": "quarterly compliance review for the audit committee",
	}, token)
	defer resp.Body.Close()

	var out exportResponse
	if resp.StatusCode == http.StatusCreated {
		testutil.DecodeJSON(t, resp, &out)
	}
	return out, resp.StatusCode
}

func TestExportRestrictedDataNeedsApproval(t *testing.T) {
	env := testutil.NewTestEnv(t)

	adminToken, _, _ := env.EstablishSession("Root Admin", domain.RoleAdmin)
	env.Classify(adminToken, "patients", "ssn", domain.LevelRestricted, 365)

	nurseToken, _, _ := env.EstablishSession("Nurse Okafor", domain.RoleNurse)

	req, status := requestExport(t, env, nurseToken, []string{"patients"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if req.Status != "pending" {
		t.Errorf("restricted export for a nurse must be pending, got %s", req.Status)
	}
	if req.Classification != "restricted" {
		t.Errorf("expected restricted classification, got %s", req.Classification)
	}

	// Approval check fails while pending.
	resp := env.AuthGET("/exports/"+req.ID+"/approval", nurseToken)
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	// Admin approves; the check now passes.
	resp2 := env.POST("/exports/"+req.ID+"/approve", map[string]string{"notes": "reviewed"}, adminToken)
	testutil.AssertStatus(t, resp2, http.StatusOK)

	var decided exportResponse
	testutil.DecodeJSON(t, resp2, &decided)
	if decided.Status != "approved" {
		t.Errorf("expected approved, got %s", decided.Status)
	}

	resp3 := env.AuthGET("/exports/"+req.ID+"/approval", nurseToken)
	testutil.AssertStatus(t, resp3, http.StatusOK)
	resp3.Body.Close()

	// A second decision hits the atomic pending guard.
	resp4 := env.POST("/exports/"+req.ID+"/approve", map[string]string{"notes": "again"}, adminToken)
	testutil.AssertStatus(t, resp4, http.StatusConflict)
	resp4.Body.Close()
}

func TestExportUnclassifiedAutoApprovedForStaff(t *testing.T) {
	env := testutil.NewTestEnv(t)

	// No classifications: the table defaults to internal, auto-approved for staff.
	nurseToken, _, _ := env.EstablishSession("Nurse Okafor", domain.RoleNurse)

	req, status := requestExport(t, env, nurseToken, []string{"patients"})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if req.Status != "approved" || !req.AutoApproved {
		t.Errorf("internal export for staff should auto-approve, got %+v", req)
	}
}

func TestExportTableOutsideRoleScopeForbidden(t *testing.T) {
	env := testutil.NewTestEnv(t)

	// Receptionists may not touch lab_results.
	recToken, _, _ := env.EstablishSession("Front Desk", domain.RoleReceptionist)

	_, status := requestExport(t, env, recToken, []string{"lab_results"})
	if status != http.StatusForbidden {
		t.Errorf("expected 403, got %d", status)
	}
}

func TestExportRejectFlow(t *testing.T) {
	env := testutil.NewTestEnv(t)

	adminToken, _, _ := env.EstablishSession("Root Admin", domain.RoleAdmin)
	env.Classify(adminToken, "patients", "diagnosis", domain.LevelConfidential, 365)

	doctorToken, _, _ := env.EstablishSession("Dr. Reyes", domain.RoleDoctor)
	req, _ := requestExport(t, env, doctorToken, []string{"patients"})
	if req.Status != "pending" {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	resp := env.POST("/exports/"+req.ID+"/reject", map[string]string{"notes": "insufficient justification"}, adminToken)
	testutil.AssertStatus(t, resp, http.StatusOK)

	var decided exportResponse
	testutil.DecodeJSON(t, resp, &decided)
	if decided.Status != "rejected" {
		t.Errorf("expected rejected, got %s", decided.Status)
	}
}

func TestCanExportCeilings(t *testing.T) {
	env := testutil.NewTestEnv(t)

	nurseToken, _, _ := env.EstablishSession("Nurse Okafor", domain.RoleNurse)

	check := func(table string, count int) (allowed bool, reason string) {
		resp := env.POST("/exports/check", map[string]interface{}{
			"table": table, "record_count": count,
		}, nurseToken)
		testutil.AssertStatus(t, resp, http.StatusOK)
		var out struct {
			Allowed bool   `json:"allowed"`
			Reason  string `json:"reason"`
		}
		testutil.DecodeJSON(t, resp, &out)
		return out.Allowed, out.Reason
	}

	if allowed, _ := check("patients", 100); !allowed {
		t.Error("small export within ceiling should be allowed")
	}
	if allowed, reason := check("patients", 5001); allowed {
		t.Errorf("export above nurse ceiling should be gated, reason %q", reason)
	}
	if allowed, _ := check("lab_results", 10); allowed {
		t.Error("table outside nurse scope must be denied")
	}
}

func TestExportListGatedToApprovers(t *testing.T) {
	env := testutil.NewTestEnv(t)

	adminToken, _, _ := env.EstablishSession("Root Admin", domain.RoleAdmin)
	nurseToken, _, _ := env.EstablishSession("Nurse Okafor", domain.RoleNurse)

	requestExport(t, env, nurseToken, []string{"patients"})

	// all=true needs an approver role.
	resp := env.AuthGET("/exports?all=true", nurseToken)
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp2 := env.AuthGET("/exports?all=true", adminToken)
	testutil.AssertStatus(t, resp2, http.StatusOK)

	var list struct {
		Count int `json:"count"`
	}
	testutil.DecodeJSON(t, resp2, &list)
	if list.Count != 1 {
		t.Errorf("expected 1 request in the full list, got %d", list.Count)
	}
}
