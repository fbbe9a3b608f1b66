package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseAccountID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "alice"},
		{name: "dotted", input: "alice.near"},
		{name: "mixed separators", input: "token-1_a.b"},
		{name: "digits only", input: "42"},
		{name: "max length", input: strings.Repeat("a", MaxAccountIDLen)},
		{name: "too short", input: "a", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxAccountIDLen+1), wantErr: true},
		{name: "uppercase", input: "Alice", wantErr: true},
		{name: "leading separator", input: ".alice", wantErr: true},
		{name: "trailing separator", input: "alice.", wantErr: true},
		{name: "double separator", input: "alice..near", wantErr: true},
		{name: "space", input: "ali ce", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseAccountID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAccountID(%q) should fail", tt.input)
				}
				if !errors.Is(err, ErrInvalidAccountID) {
					t.Errorf("error = %v, want ErrInvalidAccountID", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAccountID(%q): %v", tt.input, err)
			}
			if id.String() != tt.input {
				t.Errorf("String() = %q, want %q", id, tt.input)
			}
		})
	}
}

func TestAccountID_UnmarshalJSON(t *testing.T) {
	var id AccountID
	if err := json.Unmarshal([]byte(`"bob.near"`), &id); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if id != "bob.near" {
		t.Errorf("id = %q, want bob.near", id)
	}

	if err := json.Unmarshal([]byte(`"BOB"`), &id); err == nil {
		t.Error("Unmarshal should reject invalid account id")
	}
}

func TestMustAccountID_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustAccountID should panic on invalid input")
		}
	}()
	MustAccountID("!")
}
