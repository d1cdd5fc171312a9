package souldb

// Stats is a point-in-time summary of a store.
type Stats struct {
	Records int
	Slots   int
	Buckets int
	Dirty   bool

	Saves       uint64
	FailedSaves uint64
	FailedItems uint64
	Faded       uint64
	Archived    uint64

	LastSave *SaveStats
}

// FreeSlots returns the number of table slots waiting to be reused.
func (st *Stats) FreeSlots() int {
	return st.Slots - st.Records
}

func (s *Store) Stats() Stats {
	s.tableMu.Lock()
	slots := len(s.table)
	s.indexMu.RLock()
	records, buckets := s.index.Len(), s.index.Buckets()
	s.indexMu.RUnlock()
	s.tableMu.Unlock()

	return Stats{
		Records:     records,
		Slots:       slots,
		Buckets:     buckets,
		Dirty:       s.Dirty(),
		Saves:       s.SaveCount.Load(),
		FailedSaves: s.FailedSaveCount.Load(),
		FailedItems: s.FailedItemCount.Load(),
		Faded:       s.FadedCount.Load(),
		Archived:    s.ArchivedCount.Load(),
		LastSave:    s.lastSave.Load(),
	}
}
