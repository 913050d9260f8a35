package model

import "time"

// ContactMessage is a submission of the public contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	RemoteIP  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
