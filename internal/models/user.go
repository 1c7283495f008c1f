package models

import "github.com/thoas/go-funk"

// User is an account owning zero or more places.
//
// Places is a stored back-reference to the places whose Creator is this user.
// It is kept in lockstep with Place.Creator by the service layer and must
// never be derived at read time.
type User struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"-"`
	Image    string   `json:"image"`
	Places   []string `json:"places"`
}

// HasPlace reports whether placeID is in the user's place set.
func (u *User) HasPlace(placeID string) bool {
	return funk.ContainsString(u.Places, placeID)
}

// AddPlace appends placeID unless it is already present.
func (u *User) AddPlace(placeID string) {
	if u.HasPlace(placeID) {
		return
	}
	u.Places = append(u.Places, placeID)
}

// RemovePlace drops every occurrence of placeID from the place set.
func (u *User) RemovePlace(placeID string) {
	u.Places = funk.FilterString(u.Places, func(id string) bool {
		return id != placeID
	})
	if u.Places == nil {
		u.Places = []string{}
	}
}

// Clone returns a deep copy so callers can mutate it freely.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Places = append([]string{}, u.Places...)
	return &c
}
