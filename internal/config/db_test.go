package config

import (
	"testing"
)

func clearDBEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME", "DATABASE_DSN"} {
		t.Setenv(key, "")
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "from DB_* variables",
			env: map[string]string{
				"DB_USER":      "testuser",
				"DB_PASSWORD":  "testpass",
				"DB_HOST":      "testhost",
				"DB_PORT":      "3307",
				"DB_NAME":      "testdb",
				"DATABASE_DSN": "ignored:dsn@tcp(x:1)/y",
			},
			want: "testuser:testpass@tcp(testhost:3307)/testdb?parseTime=true",
		},
		{
			name: "from DATABASE_DSN",
			env:  map[string]string{"DATABASE_DSN": "custom:dsn@tcp(custom:3306)/customdb?parseTime=true"},
			want: "custom:dsn@tcp(custom:3306)/customdb?parseTime=true",
		},
		{
			name: "partial DB_* variables fall back to default",
			env:  map[string]string{"DB_USER": "testuser", "DB_PASSWORD": "testpass"},
			want: defaultDSN,
		},
		{
			name: "default",
			want: defaultDSN,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearDBEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if got := GetDatabaseDSN(); got != tt.want {
				t.Errorf("GetDatabaseDSN() = %v, want %v", got, tt.want)
			}
		})
	}
}
