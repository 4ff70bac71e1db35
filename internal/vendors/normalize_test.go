package vendors

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"SuperMarket Ltd", "supermarket ltd"},
		{"  SuperMarket   Ltd  ", "supermarket ltd"},
		{"Café Olé", "cafe ole"},
		{"‎Shop X‏", "shop x"},
		{"UPPER", "upper"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Café   Olé", "SHOP‎ x", "plain vendor"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
