package activity

// ListOptions provides filtering options for listing score entries.
type ListOptions struct {
	TeamID string
	Kind   *Kind
	Limit  int
	Offset int
}
