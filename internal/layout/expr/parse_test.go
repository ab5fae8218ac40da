package expr

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTerms(t *testing.T) {
	tests := map[string]Node{
		"0":      Zero{},
		"1/3":    Fraction{Numerator: 1, Denominator: 3},
		"5/12":   Fraction{Numerator: 5, Denominator: 12},
		"1/1":    Fraction{Numerator: 1, Denominator: 1},
		"50%":    Percentage{Value: 0.5},
		"100%":   Percentage{Value: 1},
		"12.5%":  Percentage{Value: 0.125},
		"0%":     Percentage{Value: 0},
		"250%":   Percentage{Value: 2.5},
		"300px":  Pixel{Value: 300},
		"10.5px": Pixel{Value: 10.5},
		"0px":    Pixel{Value: 0},
	}
	for input, want := range tests {
		got, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", input, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Parse(%q) mismatch (-want +got):\n%s", input, diff)
		}
	}
}

func TestParseFoldsLeftToRight(t *testing.T) {
	got := MustParse("1/2 - 10px + 5px - 2px")
	want := Subtract{
		Left: Add{
			Left: Subtract{
				Left:  Fraction{Numerator: 1, Denominator: 2},
				Right: Pixel{Value: 10},
			},
			Right: Pixel{Value: 5},
		},
		Right: Pixel{Value: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}

	got = MustParse("100% - 300px + 10px")
	wantMixed := Add{
		Left:  Subtract{Left: Percentage{Value: 1}, Right: Pixel{Value: 300}},
		Right: Pixel{Value: 10},
	}
	if diff := cmp.Diff(wantMixed, got); diff != "" {
		t.Fatalf("unexpected tree (-want +got):\n%s", diff)
	}
}

func TestParseIgnoresWhitespace(t *testing.T) {
	base := MustParse("100% - 300px")
	for _, input := range []string{"100%-300px", " 100%  -  300px ", "\t100 % - 300 px\n"} {
		got, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", input, err)
		}
		if diff := cmp.Diff(base, got); diff != "" {
			t.Fatalf("Parse(%q) differs from spaced form:\n%s", input, diff)
		}
	}
	if diff := cmp.Diff(MustParse("1/3 + 10px - 5px"), MustParse("1/3+10px-5px")); diff != "" {
		t.Fatalf("compact form differs:\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"", ErrEmpty},
		{"   ", ErrEmpty},
		{"abc", ErrInvalidTerm},
		{"10", ErrInvalidTerm},
		{"- 10px", ErrInvalidTerm},
		{"10px + + 5px", ErrInvalidTerm},
		{"100% -", ErrIncomplete},
		{"100% - ", ErrIncomplete},
		{"100% +", ErrIncomplete},
		{"0.5/3", ErrFractionIntegers},
		{"1/2.5", ErrFractionIntegers},
		{"1/0", ErrDivisionByZero},
		{"1/2/3", ErrInvalidFraction},
		{"a/3", ErrInvalidFraction},
		{"abc%", ErrInvalidPercentage},
		{"1.2.3%", ErrInvalidPercentage},
		{"%", ErrInvalidPercentage},
		{"abcpx", ErrInvalidPixel},
		{"px", ErrInvalidPixel},
	}
	for _, tc := range tests {
		_, err := Parse(tc.input)
		if err == nil {
			t.Fatalf("Parse(%q) expected error %v", tc.input, tc.want)
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("Parse(%q) error = %v, want kind %v", tc.input, err, tc.want)
		}
		var parseErr *Error
		if !errors.As(err, &parseErr) {
			t.Fatalf("Parse(%q) error %T is not *Error", tc.input, err)
		}
		if parseErr.Source != tc.input {
			t.Fatalf("Parse(%q) error source = %q", tc.input, parseErr.Source)
		}
	}
}

func TestNodeStringRoundTrips(t *testing.T) {
	for _, input := range []string{"0", "1/3 + 10px", "100% - 300px + 10px", "12.5% - 0.5px", "57%", "33.33% + 0.07%", "14.2% - 29%"} {
		n := MustParse(input)
		if got := n.String(); got != input {
			t.Fatalf("String() of %q = %q", input, got)
		}
		again, err := Parse(n.String())
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", n.String(), err)
		}
		if diff := cmp.Diff(n, again); diff != "" {
			t.Fatalf("String() of %q does not round trip:\n%s", input, diff)
		}
	}
}
