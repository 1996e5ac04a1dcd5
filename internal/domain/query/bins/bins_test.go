package bins

import "testing"

func TestFromBreakpoints(t *testing.T) {
	got, err := FromBreakpoints([]float64{100, 200})
	if err != nil {
		t.Fatalf("FromBreakpoints: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d bins, want 3", len(got))
	}
	if got[0].Start != nil || got[0].End == nil || *got[0].End != 100 {
		t.Errorf("bin 0 = %+v, want (nil, 100)", got[0])
	}
	if got[1].Start == nil || *got[1].Start != 100 || got[1].End == nil || *got[1].End != 200 {
		t.Errorf("bin 1 = %+v, want (100, 200)", got[1])
	}
	if got[2].Start == nil || *got[2].Start != 200 || got[2].End != nil {
		t.Errorf("bin 2 = %+v, want (200, nil)", got[2])
	}

	if _, err := FromBreakpoints([]float64{200, 100}); err == nil {
		t.Error("descending breakpoints must be rejected")
	}
	if _, err := FromBreakpoints(nil); err == nil {
		t.Error("empty breakpoints must be rejected")
	}
}

func TestLocate(t *testing.T) {
	all, err := FromBreakpoints([]float64{100, 200})
	if err != nil {
		t.Fatalf("FromBreakpoints: %v", err)
	}
	cases := map[float64]int{50: 0, 100: 1, 150: 1, 200: 2, 250: 2}
	for v, want := range cases {
		if got := Locate(all, v); got != want {
			t.Errorf("Locate(%v) = %d, want %d", v, got, want)
		}
	}
}

func TestEqualWidth(t *testing.T) {
	got := EqualWidth(0, 10, 10)
	if len(got) != 10 {
		t.Fatalf("got %d bins, want 10", len(got))
	}
	if got[0].Start != nil || got[9].End != nil {
		t.Error("outermost bins must be unbounded")
	}
	if *got[4].Start != 4 || *got[4].End != 5 {
		t.Errorf("bin 4 = [%v, %v), want [4, 5)", *got[4].Start, *got[4].End)
	}
	// Out-of-range values still land in the edge bins.
	if Locate(got, -3) != 0 || Locate(got, 42) != 9 {
		t.Error("edge bins must absorb out-of-range values")
	}
}

func TestNew_Validation(t *testing.T) {
	lo, hi := 1.0, 2.0
	if _, err := New([]Bin{{Label: "a", Start: &lo, End: &hi}}); err != nil {
		t.Errorf("valid bin rejected: %v", err)
	}
	if _, err := New([]Bin{{Label: ""}}); err == nil {
		t.Error("empty label must be rejected")
	}
	if _, err := New([]Bin{{Label: "a"}, {Label: "a"}}); err == nil {
		t.Error("duplicate labels must be rejected")
	}
	if _, err := New([]Bin{{Label: "a", Start: &hi, End: &lo}}); err == nil {
		t.Error("inverted range must be rejected")
	}
}
