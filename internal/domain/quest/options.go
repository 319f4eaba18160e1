package quest

// ListOptions provides filtering options for listing quests.
type ListOptions struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// DiscoveryCursor resumes a least-discovered scan after the quest with the
// given discovery count and id. The zero value starts at the beginning.
type DiscoveryCursor struct {
	Count int
	ID    string
}

// CursorAfter positions a scan just past q.
func CursorAfter(q Quest) DiscoveryCursor {
	return DiscoveryCursor{Count: q.DiscoveryCount, ID: q.ID}
}
