package ranked

import "testing"

func TestCompute(t *testing.T) {
	tests := []struct {
		name              string
		winners, losers   []int
		wantWin, wantLoss int
	}{
		{"even teams", []int{1000, 1000}, []int{1000, 1000}, 16, 16},
		{"favourite wins", []int{1400}, []int{1000}, 3, 29},
		{"underdog wins", []int{1000}, []int{1400}, 29, 3},
		{"high rated", []int{2500, 2500}, []int{2500, 2500}, 8, 8},
		{"mid rated", []int{2200}, []int{2200}, 12, 12},
		{"empty team", nil, []int{1000}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win, loss := Compute(tt.winners, tt.losers)
			if win != tt.wantWin || loss != tt.wantLoss {
				t.Fatalf("Compute(%v, %v) = %d, %d, want %d, %d", tt.winners, tt.losers, win, loss, tt.wantWin, tt.wantLoss)
			}
		})
	}
}

func TestApplyFloorsAtZero(t *testing.T) {
	if got := Apply(10, -25); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := Apply(10, 5); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}
