package core

// Merge folds incoming messages into an existing ledger and returns the new
// ledger. For every incoming message:
//   - if its ID matches a message already in the ledger, that entry is
//     replaced in place (position preserved)
//   - otherwise it is appended, keeping the incoming order
//
// Incoming messages without an ID are assigned a fresh one before merging.
// Neither input slice is modified. Merging the same incoming set twice yields
// the same ledger as merging it once.
func Merge(existing, incoming []Message) []Message {
	merged := make([]Message, len(existing), len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	for i, m := range existing {
		merged[i] = m.Clone()
		if m.ID != "" {
			index[m.ID] = i
		}
	}

	for _, m := range incoming {
		m = m.Clone()
		if m.ID == "" {
			m.ID = NewID()
		}
		if pos, ok := index[m.ID]; ok {
			merged[pos] = m
			continue
		}
		index[m.ID] = len(merged)
		merged = append(merged, m)
	}

	return merged
}
