// Package model defines the data structures used throughout the application.
package model

import "time"

// User is one registered student. It is the only entity the registry stores.
//
// Email is the login identifier and the subject of issued bearer tokens, so
// it is fixed at registration. PasswordHash holds the bcrypt output and is
// tagged json:"-" so it can never leak through an API response.
type User struct {
	ID            int64     `json:"id"            db:"id"`
	Email         string    `json:"email"         db:"email"`
	LastName      string    `json:"lastName"      db:"last_name"`
	FirstName     string    `json:"firstName"     db:"first_name"`
	MiddleInitial string    `json:"middleInitial" db:"middle_initial"` // optional, stored as NULL when empty
	Course        string    `json:"course"        db:"course"`         // program code, e.g. "BSCS"
	Year          int       `json:"year"          db:"year"`
	Gender        string    `json:"gender"        db:"gender"`
	Graduating    bool      `json:"graduating"    db:"graduating"`
	PasswordHash  string    `json:"-"             db:"hashed_password"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// StudentFields are the mutable profile fields. Both the self-service update
// and the admin update overwrite all of them at once.
type StudentFields struct {
	LastName      string `json:"lastName"`
	FirstName     string `json:"firstName"`
	MiddleInitial string `json:"middleInitial"`
	Course        string `json:"course"`
	Year          int    `json:"year"`
	Gender        string `json:"gender"`
	Graduating    bool   `json:"graduating"`
}

// Fields returns the user's current mutable fields.
func (u *User) Fields() StudentFields {
	return StudentFields{
		LastName:      u.LastName,
		FirstName:     u.FirstName,
		MiddleInitial: u.MiddleInitial,
		Course:        u.Course,
		Year:          u.Year,
		Gender:        u.Gender,
		Graduating:    u.Graduating,
	}
}

// Apply copies every field of f onto u.
func (u *User) Apply(f StudentFields) {
	u.LastName = f.LastName
	u.FirstName = f.FirstName
	u.MiddleInitial = f.MiddleInitial
	u.Course = f.Course
	u.Year = f.Year
	u.Gender = f.Gender
	u.Graduating = f.Graduating
}

// Registration is the payload of POST /register. The embedded StudentFields
// flatten into the same JSON object as email and password.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	StudentFields
}
