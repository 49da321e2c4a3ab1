package model

// Member is the optional job creator reference (Job.CreatedByMemberID). No
// authentication is in scope, so this is a plain identity row rather than an
// account with credentials.
type Member struct {
	ID       int64  `json:"id"`
	ClientID int64  `json:"client_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}
