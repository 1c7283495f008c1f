package models

// Location is a point in WGS84 coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DefaultLocation is used when a place is created without coordinates.
var DefaultLocation = Location{Lat: 55.5, Lng: 65.5}

// Place is a location owned by exactly one user.
type Place struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Location    Location `json:"location"`
	Address     string   `json:"address"`
	Creator     string   `json:"creator"`

	// CreatorUser is populated only by lookups that ask for the creator.
	CreatorUser *User `json:"-"`
}

// Clone returns a copy of the place. The populated creator is cloned too.
func (p *Place) Clone() *Place {
	if p == nil {
		return nil
	}
	c := *p
	c.CreatorUser = p.CreatorUser.Clone()
	return &c
}
