package password

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePolicy(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"valid", "Correct-Horse1", true},
		{"exactly twelve", "Abcdefgh1!xy", true},
		{"eleven", "Abcdefgh1!x", false},
		{"max length", "Aa1!" + strings.Repeat("x", MaxLength-4), true},
		{"over max", "Aa1!" + strings.Repeat("x", MaxLength-3), false},
		{"no upper", "correct-horse1", false},
		{"no lower", "CORRECT-HORSE1", false},
		{"no digit", "Correct-Horse!", false},
		{"no symbol", "CorrectHorse12", false},
		{"unicode runes counted", "Ünïcödé-Päss1", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePolicy(tc.in)
			if tc.ok && err != nil {
				t.Fatalf("expected %q to pass, got %v", tc.in, err)
			}
			if !tc.ok && !errors.Is(err, ErrPolicy) {
				t.Fatalf("expected %q to fail with ErrPolicy, got %v", tc.in, err)
			}
		})
	}
}

func TestValidatePolicyListsEveryFailure(t *testing.T) {
	err := ValidatePolicy("abc")
	if err == nil {
		t.Fatal("expected failure")
	}
	for _, want := range []string{"at least 12", "uppercase", "digit", "symbol"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}
}
