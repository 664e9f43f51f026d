package geometry

import "testing"

func TestIoU_Identity(t *testing.T) {
	boxes := []Box{
		Rect(0, 0, 100, 100),
		Rect(10, 20, 30, 40),
		Rect(-5, -5, 5, 5),
	}
	for _, b := range boxes {
		if got := IoU(b, b); got != 1.0 {
			t.Errorf("IoU(%v, %v) = %v, want 1.0", b, b, got)
		}
	}
}

func TestIoU_Disjoint(t *testing.T) {
	a := Rect(0, 0, 10, 10)
	b := Rect(20, 20, 30, 30)
	if got := IoU(a, b); got != 0 {
		t.Errorf("IoU of disjoint boxes = %v, want 0", got)
	}
}

func TestIoU_Symmetric(t *testing.T) {
	a := Rect(0, 0, 100, 100)
	b := Rect(50, 50, 150, 150)
	if IoU(a, b) != IoU(b, a) {
		t.Errorf("IoU not symmetric: %v vs %v", IoU(a, b), IoU(b, a))
	}
}

func TestIoU_Bounded(t *testing.T) {
	cases := [][2]Box{
		{Rect(0, 0, 100, 100), Rect(50, 0, 150, 100)},
		{Rect(0, 0, 4, 4), Rect(2, 2, 6, 6)},
		{Rect(0, 0, 1, 1), Rect(0, 0, 1000, 1000)},
	}
	for _, c := range cases {
		got := IoU(c[0], c[1])
		if got < 0 || got > 1 {
			t.Errorf("IoU(%v, %v) = %v, out of [0,1]", c[0], c[1], got)
		}
	}
}

func TestIoU_DegenerateBox(t *testing.T) {
	degenerate := Rect(10, 10, 10, 50) // zero width
	other := Rect(0, 0, 100, 100)
	if got := IoU(degenerate, other); got != 0 {
		t.Errorf("IoU with degenerate box = %v, want 0", got)
	}
	if got := IoU(degenerate, degenerate); got != 0 {
		t.Errorf("IoU of two degenerate boxes = %v, want 0 (no division by zero)", got)
	}
}

func TestIoU_HalfOverlap(t *testing.T) {
	a := Rect(0, 0, 100, 100)
	b := Rect(0, 50, 100, 150)
	// intersection 100x50 = 5000, union 20000-5000 = 15000
	want := 5000.0 / 15000.0
	if got := IoU(a, b); got != want {
		t.Errorf("IoU = %v, want %v", got, want)
	}
}

func TestClamp_InsideBounds(t *testing.T) {
	cases := []struct {
		box  Box
		w, h int
	}{
		{Rect(-50, -50, 2000, 2000), 640, 480},
		{Rect(100, 100, 200, 200), 640, 480},
		{Rect(-10, 5, 20, 5000), 1920, 1080},
		{Rect(700, 500, 800, 600), 640, 480}, // entirely outside
	}
	for _, c := range cases {
		got := c.box.Clamp(c.w, c.h)
		if got.X1 < 0 || got.Y1 < 0 || got.X2 >= c.w || got.Y2 >= c.h {
			t.Errorf("Clamp(%v, %d, %d) = %v, outside [0,%d)x[0,%d)", c.box, c.w, c.h, got, c.w, c.h)
		}
		if got.X1 > got.X2 || got.Y1 > got.Y2 {
			t.Errorf("Clamp(%v) = %v, corner ordering broken", c.box, got)
		}
	}
}

func TestClamp_OutsideBoxBecomesUntrackable(t *testing.T) {
	box := Rect(1000, 1000, 1100, 1100).Clamp(640, 480)
	if box.Trackable() {
		t.Errorf("box clamped from outside the frame should not be trackable, got %v", box)
	}
}

func TestTrackable(t *testing.T) {
	if !Rect(0, 0, 10, 10).Trackable() {
		t.Error("10x10 box should be trackable")
	}
	if Rect(0, 0, 9, 10).Trackable() {
		t.Error("9px-wide box should not be trackable")
	}
}

func TestFromXYWH(t *testing.T) {
	b := FromXYWH(10, 20, 30, 40)
	if b.X1 != 10 || b.Y1 != 20 || b.X2 != 40 || b.Y2 != 60 {
		t.Errorf("FromXYWH = %v", b)
	}
	if b.Width() != 30 || b.Height() != 40 {
		t.Errorf("Width/Height = %d/%d, want 30/40", b.Width(), b.Height())
	}
}

func TestExpand(t *testing.T) {
	b := Rect(100, 100, 200, 200).Expand(50)
	if b != Rect(50, 50, 250, 250) {
		t.Errorf("Expand(50) = %v", b)
	}
}
