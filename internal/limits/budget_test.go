package limits

import "testing"

func TestChargeWithinLimit(t *testing.T) {
	b := NewBudget(100)
	if err := b.Charge(60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Charge(40); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Used() != 100 {
		t.Fatalf("expected 100 used, got %d", b.Used())
	}
}

func TestChargeOverLimit(t *testing.T) {
	b := NewBudget(100)
	if err := b.Charge(101); err == nil {
		t.Fatal("expected overrun error")
	}
	// A failed charge must not consume budget.
	if b.Used() != 0 {
		t.Fatalf("failed charge consumed budget: %d", b.Used())
	}
}

func TestWouldExceed(t *testing.T) {
	b := NewBudget(100)
	b.Charge(90)
	if b.WouldExceed(10) {
		t.Fatal("exactly at the limit should fit")
	}
	if !b.WouldExceed(11) {
		t.Fatal("one past the limit should exceed")
	}
}

func TestZeroLimitIsUnlimited(t *testing.T) {
	b := NewBudget(0)
	if err := b.Charge(1 << 40); err != nil {
		t.Fatalf("zero limit should never error: %v", err)
	}
	if b.WouldExceed(1 << 40) {
		t.Fatal("zero limit should never exceed")
	}
}

func TestNilBudgetIsInert(t *testing.T) {
	var b *Budget
	if err := b.Charge(10); err != nil {
		t.Fatalf("nil budget charge errored: %v", err)
	}
	b.Sync(5)
	if b.Used() != 0 || b.Limit() != 0 {
		t.Fatal("nil budget should report zeros")
	}
}

func TestSyncClampsNegative(t *testing.T) {
	b := NewBudget(100)
	b.Charge(50)
	b.Sync(-10)
	if b.Used() != 0 {
		t.Fatalf("expected clamp to 0, got %d", b.Used())
	}
}

func TestMaxMemoryErrorMessage(t *testing.T) {
	err := MaxMemoryError{Limit: 4096}
	want := "max memory exceeded (4096 bytes)"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}
