package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/taminot_backend/models"
)

func TestRequisitionStatusMachine(t *testing.T) {
	pending := models.RequisitionStatusPending
	approved := models.RequisitionStatusApproved
	rejected := models.RequisitionStatusRejected

	if !pending.CanTransitionTo(approved) || !pending.CanTransitionTo(rejected) {
		t.Fatal("PENDING must transition to both terminal states")
	}
	if pending.CanTransitionTo(pending) {
		t.Fatal("PENDING -> PENDING must be rejected")
	}

	for _, terminal := range []models.RequisitionStatus{approved, rejected} {
		if !terminal.IsTerminal() {
			t.Fatalf("%s must be terminal", terminal)
		}
		for _, next := range []models.RequisitionStatus{pending, approved, rejected} {
			if terminal.CanTransitionTo(next) {
				t.Fatalf("%s -> %s must be rejected", terminal, next)
			}
		}
	}
	if pending.IsTerminal() {
		t.Fatal("PENDING is not terminal")
	}

	if models.RequisitionStatus("CANCELLED").IsValid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestNormalizeVariant(t *testing.T) {
	if got := models.NormalizeVariant(""); got != models.DefaultVariant {
		t.Fatalf("empty variant: got %q", got)
	}
	if got := models.NormalizeVariant("O(I) Rh+"); got != "O(I) Rh+" {
		t.Fatalf("named variant must pass through: got %q", got)
	}
}

func TestOrgScope(t *testing.T) {
	admin := models.User{ID: 1, Role: models.UserRoleAdmin}
	if admin.OrgScope() != models.CentralOrgId {
		t.Fatalf("administrator scope: got %q", admin.OrgScope())
	}
	org := models.User{ID: 7, Role: models.UserRoleOrg}
	if org.OrgScope() != "7" {
		t.Fatalf("organization scope: got %q", org.OrgScope())
	}
}
