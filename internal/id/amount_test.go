package id

import "testing"

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"100", 6, "100000000"},
		{"1.25", 6, "1250000"},
		{" 0.01 ", 18, "10000000000000000"},
		{"007", 0, "7"},
		{"1.", 6, ""},
	}
	for _, tc := range cases {
		got, err := ToBaseUnits(tc.in, tc.decimals)
		if tc.want == "" {
			if err == nil {
				t.Fatalf("ToBaseUnits(%q) expected error, got %s", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ToBaseUnits(%q, %d) = %s, %v; want %s", tc.in, tc.decimals, got, err, tc.want)
		}
	}
}

func TestToBaseUnitsValidation(t *testing.T) {
	for _, in := range []string{"-1", "", "1e18", "abc", ".5"} {
		if _, err := ToBaseUnits(in, 6); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if _, err := ToBaseUnits("1.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
}

func TestFormatUnits(t *testing.T) {
	cases := map[string]string{
		"0":            "0",
		"1500000":      "1.5",
		"1000000":      "1",
		"1":            "0.000001",
		"-2500000":     "-2.5",
		"not-a-number": "0",
	}
	for in, want := range cases {
		if got := FormatUnits(in, 6); got != want {
			t.Fatalf("FormatUnits(%q) = %s, want %s", in, got, want)
		}
	}
	if got := FormatUnits("42", 0); got != "42" {
		t.Fatalf("zero decimals should pass through, got %s", got)
	}
}
