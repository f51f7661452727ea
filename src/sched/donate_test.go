package sched

import "testing"

func TestDonationPropagatesAlongChain(t *testing.T) {
	low := newThread("low", 10)
	mid := newThread("mid", 20)
	high := newThread("high", 30)

	AddEdge(mid, low)  // mid blocked on a lock low holds
	AddEdge(high, mid) // high blocked on a lock mid holds

	UpdateThreadPriority(mid)
	UpdateDonationChainPriority(mid)

	if low.EffectivePriority() != 30 {
		t.Fatalf("low.EffectivePriority() = %d, want 30 (donated through mid)", low.EffectivePriority())
	}
}

func TestRemoveEdgeStopsDonation(t *testing.T) {
	low := newThread("low", 10)
	high := newThread("high", 30)

	AddEdge(high, low)
	UpdateThreadPriority(low)
	if low.EffectivePriority() != 30 {
		t.Fatalf("low.EffectivePriority() = %d, want 30 while donation is active", low.EffectivePriority())
	}

	RemoveEdge(high, low)
	UpdateThreadPriority(low)
	if low.EffectivePriority() != 10 {
		t.Fatalf("low.EffectivePriority() = %d, want 10 after RemoveEdge", low.EffectivePriority())
	}
}

func TestUpdateThreadPriorityIgnoresLowerDonors(t *testing.T) {
	t1 := newThread("t1", 20)
	donor := newThread("donor", 5)
	AddEdge(donor, t1)

	if got := UpdateThreadPriority(t1); got != 20 {
		t.Fatalf("UpdateThreadPriority = %d, want 20 (own priority beats a lower donor)", got)
	}
}
