package sched

/// AddEdge records that donor is waiting on a lock held by donee, grounded
/// on thread/scheduler/priority/donate.rs::Donate::add_edge.
func AddEdge(donor, donee *Thread) {
	donor.mu.Lock()
	donor.donee = donee
	donor.mu.Unlock()

	donee.mu.Lock()
	donee.donors = append(donee.donors, donor)
	donee.mu.Unlock()
}

/// RemoveEdge undoes AddEdge once donor acquires the lock (or gives up
/// waiting on it).
func RemoveEdge(donor, donee *Thread) {
	donor.mu.Lock()
	donor.donee = nil
	donor.mu.Unlock()

	donee.mu.Lock()
	for i, d := range donee.donors {
		if d == donor {
			donee.donors = append(donee.donors[:i], donee.donors[i+1:]...)
			break
		}
	}
	donee.mu.Unlock()
}

/// UpdateThreadPriority recomputes t's effective priority as the max of its
/// own priority and every direct donor's effective priority.
func UpdateThreadPriority(t *Thread) uint32 {
	t.mu.Lock()
	max := t.priority
	for _, d := range t.donors {
		if ep := d.EffectivePriority(); ep > max {
			max = ep
		}
	}
	t.effectivePriority = max
	t.mu.Unlock()
	return max
}

/// UpdateDonationChainPriority propagates thread's effective priority to its
/// donee, and that donee's donee, and so on, stopping as soon as a link in
/// the chain already has priority at least as high (donation chains cannot
/// cycle by construction: a thread only ever donates to the holder of a lock
/// it is blocked on, and lock acquisition order is acyclic).
func UpdateDonationChainPriority(thread *Thread) {
	priority := thread.EffectivePriority()
	u := thread
	for {
		u.mu.Lock()
		v := u.donee
		u.mu.Unlock()
		if v == nil {
			break
		}
		if v.EffectivePriority() < priority {
			v.SetEffectivePriority(priority)
			u = v
		} else {
			break
		}
	}
}
