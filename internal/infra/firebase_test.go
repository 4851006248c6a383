package infra

import "testing"

func TestRoleFromClaims(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   string
	}{
		{"driver", map[string]interface{}{"role": "driver"}, RoleDriver},
		{"rider mixed case", map[string]interface{}{"role": " Rider "}, RoleRider},
		{"missing", map[string]interface{}{}, ""},
		{"nil claims", nil, ""},
		{"not a string", map[string]interface{}{"role": 7}, ""},
		{"unknown role", map[string]interface{}{"role": "admin"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoleFromClaims(tt.claims); got != tt.want {
				t.Errorf("RoleFromClaims = %q, want %q", got, tt.want)
			}
		})
	}
}
