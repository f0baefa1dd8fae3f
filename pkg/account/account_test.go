package account

import "testing"

func TestAccount_TotalCredits(t *testing.T) {
	a := Account{Credits: map[string]int{"web": 10, "openapi": 5}}
	if got := a.TotalCredits(); got != 15 {
		t.Errorf("TotalCredits() = %d, want 15", got)
	}
}

func TestAccount_PreferredCreditType(t *testing.T) {
	tests := []struct {
		name    string
		credits map[string]int
		want    string
	}{
		{"prefers web", map[string]int{"web": 1, "openapi": 5}, "web"},
		{"falls back to openapi", map[string]int{"web": 0, "openapi": 5}, "openapi"},
		{"no balance", map[string]int{"web": 0, "openapi": 0}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Account{Credits: tt.credits}
			if got := a.PreferredCreditType(); got != tt.want {
				t.Errorf("PreferredCreditType() = %q, want %q", got, tt.want)
			}
		})
	}
}
