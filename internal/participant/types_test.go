package participant

import "testing"

func TestUpdateIsEmpty(t *testing.T) {
	if !(Update{}).IsEmpty() {
		t.Error("zero Update should be empty")
	}

	name := "Kim"
	if (Update{Name: &name}).IsEmpty() {
		t.Error("Update with Name set should not be empty")
	}

	limit := 8
	if (Update{SessionLimit: &limit}).IsEmpty() {
		t.Error("Update with SessionLimit set should not be empty")
	}
}

func TestValidGroup(t *testing.T) {
	tests := []struct {
		group string
		want  bool
	}{
		{GroupTreatment, true},
		{GroupControl, true},
		{GroupAdmin, true},
		{"placebo", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidGroup(tt.group); got != tt.want {
			t.Errorf("ValidGroup(%q) = %v, want %v", tt.group, got, tt.want)
		}
	}
}

func TestValidStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusActive, true},
		{StatusInactive, true},
		{StatusCompleted, true},
		{StatusDropout, true},
		{"paused", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidStatus(tt.status); got != tt.want {
			t.Errorf("ValidStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
