package delivery

import "testing"

func TestIsValidStrict(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"success result", 200, `{"result":"Success"}`, true},
		{"created with result", 201, `{"result":"Success"}`, true},
		{"empty object", 200, `{}`, false},
		{"empty result", 200, `{"result":""}`, false},
		{"false result", 200, `{"result":false}`, false},
		{"array", 200, `[]`, false},
		{"null", 200, `null`, false},
		{"empty body", 200, ``, false},
		{"plain text", 200, `OK`, false},
		{"server error with result", 500, `{"result":"Success"}`, false},
		{"redirect", 302, `{"result":"Success"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidStrict(tt.status, tt.body); got != tt.want {
				t.Errorf("IsValidStrict(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestIsValidBroad(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"empty object", 200, `{}`, true},
		{"empty array", 200, `[]`, true},
		{"object with padding", 200, "  {\"a\":1}\n", true},
		{"array of objects", 201, `[{"a":1}]`, true},
		{"null", 200, `null`, false},
		{"empty body", 200, ``, false},
		{"number", 200, `42`, false},
		{"string", 200, `"ok"`, false},
		{"broken json", 200, `{"a":`, false},
		{"html", 200, `<html></html>`, false},
		{"server error", 500, `{}`, false},
		{"bad request", 400, `[]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidBroad(tt.status, tt.body); got != tt.want {
				t.Errorf("IsValidBroad(%d, %q) = %v, want %v", tt.status, tt.body, got, tt.want)
			}
		})
	}
}
