package team

// ListOptions provides filtering options for listing teams.
type ListOptions struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
