package rofl

// ExpirationSweep implements spec.md §4.7's "Expiration sweep": scan at
// most MaxExpirationSweep registrations whose expiration has passed at
// currentEpoch and remove them. Called once per block whenever the
// epoch has advanced; the embedder is responsible for only invoking it
// on an epoch transition (spec.md §1 scopes the block/epoch clock
// itself out of this package).
//
// The scan walks the full Registrations keyspace in key order, which is
// (app, RAK)-sorted rather than expiration-sorted: an adversarial or
// merely unlucky keyspace could see the same already-live registrations
// revisited every block while a batch of expired ones past the scan
// horizon goes unswept for longer than one block. spec.md §4.7 bounds
// sweep cost per block rather than sweep latency, so this is within
// spec, but a future iteration could maintain an expiration-ordered
// secondary index if latency becomes a problem.
func (m *Module) ExpirationSweep(currentEpoch Epoch) (removed int, err error) {
	var toRemove [][]byte
	scanned := 0

	err = m.Registrations.Iterate(nil, nil, func(key []byte, reg Registration) (bool, error) {
		if scanned >= m.MaxExpirationSweep {
			return false, nil
		}
		scanned++
		if reg.Expiration <= currentEpoch {
			toRemove = append(toRemove, append([]byte(nil), key...))
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range toRemove {
		m.Registrations.Remove(key)
	}
	return len(toRemove), nil
}
