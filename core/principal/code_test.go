package principal

import (
	"math/rand"
	"testing"
	"time"
)

func TestNewCode(t *testing.T) {
	nowFunc = func() time.Time { return time.Date(2021, time.March, 14, 15, 9, 26, 535e6, time.UTC) }
	randFunc = func(n int) int { return 231 }
	defer func() {
		nowFunc = time.Now
		randFunc = rand.Intn
	}()

	tests := []struct {
		role Role
		want string
	}{
		{role: RoleStudent, want: "STU-"},
		{role: RoleTeacher, want: "TCH-"},
		{role: RoleAdmin, want: "ADM-"},
		{role: RoleSuperAdmin, want: "ADM-"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			code := NewCode(tt.role)
			// prefix + 8 timestamp digits + 4 random digits
			if len(code) != len(tt.want)+12 {
				t.Errorf("NewCode() = %q, want %d chars", code, len(tt.want)+12)
			}
			if code[:len(tt.want)] != tt.want {
				t.Errorf("NewCode() = %q, want prefix %q", code, tt.want)
			}
			if code[len(code)-4:] != "1231" {
				t.Errorf("NewCode() = %q, want suffix %q", code, "1231")
			}
		})
	}
}
