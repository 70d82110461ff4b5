package services

import "testing"

func TestResolvePriority_AutoThresholds(t *testing.T) {
	cases := []struct {
		days int
		want string
	}{
		{0, "high"},
		{7, "high"},
		{8, "medium"},
		{14, "medium"},
		{15, "low"},
		{60, "low"},
		{-2, "high"}, // already-overdue renewals are the most urgent
	}
	for _, c := range cases {
		if got := resolvePriority("auto", c.days); got != c.want {
			t.Fatalf("auto priority for %d days: got %q, want %q", c.days, got, c.want)
		}
	}
}

func TestResolvePriority_EmptyMeansAuto(t *testing.T) {
	if got := resolvePriority("", 5); got != "high" {
		t.Fatalf("got %q, want high", got)
	}
}

func TestResolvePriority_FixedOverridesUrgency(t *testing.T) {
	if got := resolvePriority("low", 1); got != "low" {
		t.Fatalf("got %q, want low", got)
	}
}

func TestResolveAssignee_AccountOwnerStrategy(t *testing.T) {
	rec := CandidateRecord{AssignedTo: 42}
	trigger := uint(7)
	if got := resolveAssignee(ActionConfig{AssigneeStrategy: "account_owner"}, rec, &trigger); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestResolveAssignee_SpecificUserStrategy(t *testing.T) {
	rec := CandidateRecord{AssignedTo: 42}
	if got := resolveAssignee(ActionConfig{AssigneeStrategy: "specific_user", AssigneeUserID: 9}, rec, nil); got != 9 {
		t.Fatalf("got %d, want 9", got)
	}
}

func TestResolveAssignee_TriggeringUserStrategy(t *testing.T) {
	rec := CandidateRecord{AssignedTo: 42}
	trigger := uint(7)
	if got := resolveAssignee(ActionConfig{AssigneeStrategy: "triggering_user"}, rec, &trigger); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestResolveAssignee_UnsetStrategyPrefersTriggeringUser(t *testing.T) {
	rec := CandidateRecord{AssignedTo: 42}

	// No configured strategy: a manual run assigns the invoking user, not
	// the account owner.
	trigger := uint(7)
	if got := resolveAssignee(ActionConfig{}, rec, &trigger); got != 7 {
		t.Fatalf("got %d, want triggering user 7", got)
	}

	// Without an invoking user (cron) the account owner takes it.
	if got := resolveAssignee(ActionConfig{}, rec, nil); got != 42 {
		t.Fatalf("got %d, want account owner 42", got)
	}
}

func TestResolveAssignee_FallsBackThroughChain(t *testing.T) {
	rec := CandidateRecord{AssignedTo: 42}

	// triggering_user with no triggering user falls back to the caller,
	// then to the account owner.
	if got := resolveAssignee(ActionConfig{AssigneeStrategy: "triggering_user"}, rec, nil); got != 42 {
		t.Fatalf("got %d, want account owner 42", got)
	}

	// specific_user with no user configured falls back to the trigger.
	trigger := uint(7)
	if got := resolveAssignee(ActionConfig{AssigneeStrategy: "specific_user"}, rec, &trigger); got != 7 {
		t.Fatalf("got %d, want triggering user 7", got)
	}

	// Ownerless record with no trigger resolves to nobody.
	if got := resolveAssignee(ActionConfig{}, CandidateRecord{}, nil); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestBuildTemplateData_ContactName(t *testing.T) {
	rec := CandidateRecord{FirstName: "Jane", LastName: "Doe", AccountName: "Acme"}
	data := buildTemplateData(rec, 10)
	if data["contact_name"] != "Jane Doe" {
		t.Fatalf("got %q", data["contact_name"])
	}
	if data["days_remaining"] != "10" {
		t.Fatalf("got %q", data["days_remaining"])
	}

	// A missing last name must not leave a trailing space.
	data = buildTemplateData(CandidateRecord{FirstName: "Jane"}, 0)
	if data["contact_name"] != "Jane" {
		t.Fatalf("got %q", data["contact_name"])
	}

	data = buildTemplateData(CandidateRecord{}, 0)
	if data["contact_name"] != "" {
		t.Fatalf("got %q, want empty", data["contact_name"])
	}
}
