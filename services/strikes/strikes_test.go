package strikes

import (
	"reflect"
	"testing"
)

func TestATMRoundsHalfUp(t *testing.T) {
	cases := []struct {
		name string
		spot float64
		step float64
		want float64
	}{
		{"below midpoint", 21510, 50, 21500},
		{"above midpoint", 21540, 50, 21550},
		{"exact strike", 21550, 50, 21550},
		{"half-step boundary rounds up", 21525, 50, 21550},
		{"banknifty step", 46949, 100, 46900},
		{"banknifty half boundary rounds up", 46950, 100, 47000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ATM(tc.spot, tc.step); got != tc.want {
				t.Fatalf("ATM(%v, %v) = %v, want %v", tc.spot, tc.step, got, tc.want)
			}
		})
	}
}

func TestLadder(t *testing.T) {
	got := Ladder(21527, 50, 1)
	want := []float64{21500, 21550, 21600}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Ladder depth 1 = %v, want %v", got, want)
	}

	got = Ladder(21527, 50, 3)
	if len(got) != 7 {
		t.Fatalf("Ladder depth 3 has %d strikes, want 7", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i]-got[i-1] != 50 {
			t.Fatalf("ladder not ascending by step: %v", got)
		}
	}
}

func TestLadderZeroDepthIsATMOnly(t *testing.T) {
	got := Ladder(21527, 50, 0)
	if len(got) != 1 || got[0] != 21550 {
		t.Fatalf("Ladder depth 0 = %v, want [21550]", got)
	}
}
