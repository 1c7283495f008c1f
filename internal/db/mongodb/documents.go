package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/patric-chuzhbe/yourplaces/internal/db/storage"
	"github.com/patric-chuzhbe/yourplaces/internal/models"
)

type userDocument struct {
	ID       primitive.ObjectID   `bson:"_id,omitempty"`
	Name     string               `bson:"name"`
	Email    string               `bson:"email"`
	Password string               `bson:"password"`
	Image    string               `bson:"image"`
	Places   []primitive.ObjectID `bson:"places"`
}

type locationDocument struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

type placeDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Image       string             `bson:"image"`
	Location    locationDocument   `bson:"location"`
	Address     string             `bson:"address"`
	Creator     primitive.ObjectID `bson:"creator"`
}

func (d *userDocument) toModel() *models.User {
	places := make([]string, 0, len(d.Places))
	for _, id := range d.Places {
		places = append(places, id.Hex())
	}

	return &models.User{
		ID:       d.ID.Hex(),
		Name:     d.Name,
		Email:    d.Email,
		Password: d.Password,
		Image:    d.Image,
		Places:   places,
	}
}

// userDocumentFromModel converts a user. An empty ID yields a zero ObjectID.
func userDocumentFromModel(usr *models.User) (*userDocument, error) {
	doc := &userDocument{
		Name:     usr.Name,
		Email:    usr.Email,
		Password: usr.Password,
		Image:    usr.Image,
		Places:   make([]primitive.ObjectID, 0, len(usr.Places)),
	}

	if usr.ID != "" {
		id, err := primitive.ObjectIDFromHex(usr.ID)
		if err != nil {
			return nil, fmt.Errorf("user id %q: %w", usr.ID, storage.ErrNotFound)
		}
		doc.ID = id
	}

	for _, placeID := range usr.Places {
		id, err := primitive.ObjectIDFromHex(placeID)
		if err != nil {
			return nil, fmt.Errorf("place id %q in user %q: %w", placeID, usr.ID, err)
		}
		doc.Places = append(doc.Places, id)
	}

	return doc, nil
}

func (d *placeDocument) toModel() *models.Place {
	return &models.Place{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Image:       d.Image,
		Location:    models.Location{Lat: d.Location.Lat, Lng: d.Location.Lng},
		Address:     d.Address,
		Creator:     d.Creator.Hex(),
	}
}

func placeDocumentFromModel(place *models.Place) (*placeDocument, error) {
	creator, err := primitive.ObjectIDFromHex(place.Creator)
	if err != nil {
		return nil, fmt.Errorf("creator %q: %w", place.Creator, storage.ErrNotFound)
	}

	doc := &placeDocument{
		Title:       place.Title,
		Description: place.Description,
		Image:       place.Image,
		Location:    locationDocument{Lat: place.Location.Lat, Lng: place.Location.Lng},
		Address:     place.Address,
		Creator:     creator,
	}

	if place.ID != "" {
		id, err := primitive.ObjectIDFromHex(place.ID)
		if err != nil {
			return nil, fmt.Errorf("place id %q: %w", place.ID, storage.ErrNotFound)
		}
		doc.ID = id
	}

	return doc, nil
}
