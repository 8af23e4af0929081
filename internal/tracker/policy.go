package tracker

import (
	"fmt"

	"github.com/joescharf/maint/internal/models"
)

// GuardResult is the outcome of a policy check.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts a denial into an error wrapping ErrForbidden.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, r.Reason)
}

var allowed = GuardResult{Allowed: true}

func requireMaintenance(c models.Caller, action string) GuardResult {
	if c.Role.IsMaintenance() {
		return allowed
	}
	return GuardResult{Reason: fmt.Sprintf("only maintenance can %s (role: %s)", action, roleLabel(c.Role))}
}

func roleLabel(r models.Role) string {
	if r == "" {
		return "none"
	}
	return string(r)
}

// CanView evaluates whether the caller may read a record owned by locationID.
func CanView(c models.Caller, locationID string) GuardResult {
	if c.CanSee(locationID) {
		return allowed
	}
	return GuardResult{Reason: fmt.Sprintf("record belongs to another location (%s)", locationID)}
}

// CanCreateIssue evaluates whether the caller may report an issue.
// Rules:
// - Caller must have a location unless they are maintenance
func CanCreateIssue(c models.Caller) GuardResult {
	if c.LocationID == "" && !c.Role.IsMaintenance() {
		return GuardResult{Reason: "caller has no location"}
	}
	return allowed
}

// CanComment evaluates whether the caller may comment on an issue.
// Rules:
// - Issue must be visible to the caller
func CanComment(c models.Caller, issue *models.Issue) GuardResult {
	return CanView(c, issue.LocationID)
}

func CanSetStatus(c models.Caller) GuardResult   { return requireMaintenance(c, "change issue status") }
func CanDeleteIssue(c models.Caller) GuardResult { return requireMaintenance(c, "delete issues") }
func CanSchedule(c models.Caller) GuardResult    { return requireMaintenance(c, "schedule issues") }
func CanManageEvents(c models.Caller) GuardResult {
	return requireMaintenance(c, "create or delete events")
}
