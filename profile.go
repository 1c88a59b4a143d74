package zipcard

import (
	"context"
	"errors"
)

var ErrProfileNotFound = errors.New("profile not found")

// Theme is the two-stop gradient painted behind the public card.
type Theme struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DefaultTheme is used whenever a stored profile carries no theme.
var DefaultTheme = Theme{From: "#4f46e5", To: "#9333ea"}

// SocialLink is one labeled link on the card. Labels are unique within a
// profile; storage keeps them lower-cased in a label-keyed map.
type SocialLink struct {
	Label string `json:"label"`
	Url   string `json:"url"`
}

// Service is a single offering listed on the card.
type Service struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Featured    bool   `json:"featured"`
}

type WidgetLayout string

const (
	LayoutGrid     WidgetLayout = "grid"
	LayoutCarousel WidgetLayout = "carousel"
)

// PhotoWidget is a named gallery with its own ordered photo list.
type PhotoWidget struct {
	Name     string       `json:"name"`
	Layout   WidgetLayout `json:"layout"`
	PhotoIds []string     `json:"photoIds"`
}

// ProfileDocument is the editable aggregate behind a public card. Photo and
// profile-image references point at StoredImage ids; dangling references are
// tolerated and resolve to the fallback resource, never to an error.
type ProfileDocument struct {
	UserId   UserId `json:"-"`
	Username string `json:"username"`

	FullName string `json:"fullName"`
	Title    string `json:"title"`
	Bio      string `json:"bio"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Website  string `json:"website"`

	Socials        []SocialLink  `json:"socials"`
	Services       []Service     `json:"services"`
	PhotoIds       []string      `json:"photoIds"`
	PhotoWidgets   []PhotoWidget `json:"photoWidgets"`
	ProfileImageId string        `json:"profileImageId"`
	Theme          Theme         `json:"theme"`
}

// NewProfileDocument synthesizes the default document shown to a user who
// has never saved anything.
func NewProfileDocument(userId UserId, username string) ProfileDocument {
	return ProfileDocument{
		UserId:       userId,
		Username:     username,
		Socials:      []SocialLink{},
		Services:     []Service{},
		PhotoIds:     []string{},
		PhotoWidgets: []PhotoWidget{},
		Theme:        DefaultTheme,
	}
}

type ProfileStore interface {
	ByUserId(ctx context.Context, userId UserId) (ProfileDocument, error)

	ByUsername(ctx context.Context, username string) (ProfileDocument, error)

	// Save upserts the whole document. Last writer wins at the row level;
	// there is no field-level merge and no concurrency token.
	Save(ctx context.Context, doc ProfileDocument) error
}
