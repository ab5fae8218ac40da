package expr

import (
	"fmt"
	"testing"
)

const displayWidth = 300

func TestEvaluate(t *testing.T) {
	tests := []struct {
		input string
		size  float64
		want  int
	}{
		{"0", displayWidth, 0},
		{"1/3", displayWidth, 100},
		{"1/2", displayWidth, 150},
		{"2/3", displayWidth, 200},
		{"50%", displayWidth, 150},
		{"100%", displayWidth, 300},
		{"25%", displayWidth, 75},
		{"50px", displayWidth, 50},
		{"0px", displayWidth, 0},
		{"50% + 10px", displayWidth, 160},
		{"100% - 50px", displayWidth, 250},
		{"1/3 + 10px", displayWidth, 110},
		{"1/3 - 20px", displayWidth, 80},
		{"100% - 50px + 10px", displayWidth, 260},
		{"100% - 20px - 10px", displayWidth, 270},
		{"100px + 50px", displayWidth, 150},
		{"25% + 25%", displayWidth, 150},
		{"100% - 300px + 10px", displayWidth, 10},
		{"1/3", 1920, 640},
		{"50%", 1080, 540},
		{"100% - 300px", 1920, 1620},
		{"1/1", displayWidth, 300},
		{"10000px", displayWidth, 10000},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s@%v", tc.input, tc.size), func(t *testing.T) {
			if got := Evaluate(MustParse(tc.input), tc.size); got != tc.want {
				t.Fatalf("Evaluate(%q, %v) = %d, want %d", tc.input, tc.size, got, tc.want)
			}
		})
	}
}

func TestEvaluateRoundsOnlyAtTheEnd(t *testing.T) {
	if got := Evaluate(MustParse("1/3"), 301); got != 100 {
		t.Fatalf("1/3 of 301 = %d, want 100", got)
	}
	if got := Evaluate(MustParse("1/3"), 299); got != 100 {
		t.Fatalf("1/3 of 299 = %d, want 100", got)
	}
	// 100.33 + 100.33 would be 200 if each term were rounded first.
	if got := Evaluate(MustParse("1/3 + 1/3"), 301); got != 201 {
		t.Fatalf("1/3 + 1/3 of 301 = %d, want 201", got)
	}
	if got := Evaluate(MustParse("0.5px"), displayWidth); got != 1 {
		t.Fatalf("0.5px = %d, want 1", got)
	}
	if got := Evaluate(MustParse("0 - 2.5px"), displayWidth); got != -3 {
		t.Fatalf("0 - 2.5px = %d, want -3", got)
	}
}

func TestEvaluateZeroContainer(t *testing.T) {
	tests := map[string]int{
		"50%":         0,
		"1/3":         0,
		"0":           0,
		"50% + 10px":  10,
		"100% - 20px": -20,
	}
	for input, want := range tests {
		if got := Evaluate(MustParse(input), 0); got != want {
			t.Fatalf("Evaluate(%q, 0) = %d, want %d", input, got, want)
		}
	}
}

func TestEvaluateFractionAndPercentageProperties(t *testing.T) {
	for _, size := range []float64{0, 1, 299, 300, 301, 1080, 1920, 2560} {
		for n := 0; n <= 6; n++ {
			for d := 1; d <= 6; d++ {
				src := fmt.Sprintf("%d/%d", n, d)
				want := roundHalfAway(size * float64(n) / float64(d))
				if got := Evaluate(MustParse(src), size); got != want {
					t.Fatalf("Evaluate(%q, %v) = %d, want %d", src, size, got, want)
				}
			}
		}
		for _, p := range []int{0, 10, 25, 33, 50, 75, 100, 150} {
			src := fmt.Sprintf("%d%%", p)
			want := roundHalfAway(size * float64(p) / 100)
			if got := Evaluate(MustParse(src), size); got != want {
				t.Fatalf("Evaluate(%q, %v) = %d, want %d", src, size, got, want)
			}
		}
		if got := Evaluate(MustParse("0"), size); got != 0 {
			t.Fatalf("Evaluate(\"0\", %v) = %d", size, got)
		}
	}
}

func TestEvaluatePanicsOnForeignNode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil node")
		}
	}()
	Evaluate(nil, displayWidth)
}

func roundHalfAway(v float64) int {
	if v < 0 {
		return -int(-v + 0.5)
	}
	return int(v + 0.5)
}
