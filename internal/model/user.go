package model

// User identifies a member; comments embed it as a read-only snapshot.
type User struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Image    string `json:"image,omitempty"`
}
