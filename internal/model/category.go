package model

// Category groups expenses. A nil UserID marks a global category shared by all users.
type Category struct {
	ID     string  `json:"id"`
	UserID *string `json:"user_id,omitempty"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Icon   string  `json:"icon"`
}
