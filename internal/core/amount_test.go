package core

import "testing"

func TestParseCellAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"0", "0"},
		{"1234.56", "1234.56"},
		{"-2150.00", "-2150"},
		{"₪1,234.56", "1234.56"},
		{" 1 234.56 ", "1234.56"},
		{"‎-150.00", "-150"}, // leading directional mark
		{"garbage", "0"},
	}
	for _, tc := range cases {
		got := ParseCellAmount(tc.in)
		if got.String() != tc.want {
			t.Errorf("ParseCellAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
