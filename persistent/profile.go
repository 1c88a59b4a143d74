package persistent

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/zipcard/zipcard"
)

// Profile is the storage schema of a card: flat identity columns, a
// label-keyed socialLinks map and jsonb lists. The record↔domain mapping
// below is the only place the two shapes meet.
type Profile struct {
	bun.BaseModel `bun:"table:profile"`

	Id       int64  `bun:",pk,autoincrement"`
	UserId   int64  `bun:",unique,notnull"`
	Username string `bun:",unique,notnull"`

	FullName string
	Title    string
	Bio      string
	Phone    string
	Location string
	Website  string

	SocialLinks  map[string]string     `bun:"social_links,type:jsonb"`
	Services     []zipcard.Service     `bun:",type:jsonb"`
	PhotoIds     []string              `bun:"photo_ids,type:jsonb"`
	PhotoWidgets []zipcard.PhotoWidget `bun:"photo_widgets,type:jsonb"`

	// explicit no-image sentinel: NULL, never the empty string
	ProfileImageId sql.NullString `bun:"profile_image_id"`

	ThemeFrom string `bun:"theme_from"`
	ThemeTo   string `bun:"theme_to"`
}

// ToDomain maps a stored record to the editable document. Every field may
// be absent; absence yields empty strings, empty lists and the default
// theme, never an error.
func (p Profile) ToDomain() zipcard.ProfileDocument {
	doc := zipcard.ProfileDocument{
		UserId:   zipcard.UserId(p.UserId),
		Username: p.Username,
		FullName: p.FullName,
		Title:    p.Title,
		Bio:      p.Bio,
		Phone:    p.Phone,
		Location: p.Location,
		Website:  p.Website,
		Socials:  socialsFromMap(p.SocialLinks),
		Services: p.Services,
		PhotoIds: p.PhotoIds,
		Theme:    zipcard.Theme{From: p.ThemeFrom, To: p.ThemeTo},
	}
	if doc.Services == nil {
		doc.Services = []zipcard.Service{}
	}
	if doc.PhotoIds == nil {
		doc.PhotoIds = []string{}
	}
	doc.PhotoWidgets = make([]zipcard.PhotoWidget, 0, len(p.PhotoWidgets))
	for _, widget := range p.PhotoWidgets {
		if widget.Layout != zipcard.LayoutCarousel {
			widget.Layout = zipcard.LayoutGrid
		}
		if widget.PhotoIds == nil {
			widget.PhotoIds = []string{}
		}
		doc.PhotoWidgets = append(doc.PhotoWidgets, widget)
	}
	if p.ProfileImageId.Valid {
		doc.ProfileImageId = p.ProfileImageId.String
	}
	if doc.Theme.From == "" || doc.Theme.To == "" {
		doc.Theme = zipcard.DefaultTheme
	}
	return doc
}

// recordFromDomain is the inverse mapping. Social labels are lower-cased
// and blank entries dropped when flattening back into the label-keyed map;
// an empty profile-image reference becomes the NULL sentinel.
func recordFromDomain(doc zipcard.ProfileDocument) Profile {
	record := Profile{
		UserId:       int64(doc.UserId),
		Username:     doc.Username,
		FullName:     doc.FullName,
		Title:        doc.Title,
		Bio:          doc.Bio,
		Phone:        doc.Phone,
		Location:     doc.Location,
		Website:      doc.Website,
		SocialLinks:  socialsToMap(doc.Socials),
		Services:     doc.Services,
		PhotoIds:     doc.PhotoIds,
		PhotoWidgets: doc.PhotoWidgets,
		ThemeFrom:    doc.Theme.From,
		ThemeTo:      doc.Theme.To,
	}
	if record.Services == nil {
		record.Services = []zipcard.Service{}
	}
	if record.PhotoIds == nil {
		record.PhotoIds = []string{}
	}
	if record.PhotoWidgets == nil {
		record.PhotoWidgets = []zipcard.PhotoWidget{}
	}
	if doc.ProfileImageId != "" {
		record.ProfileImageId = sql.NullString{String: doc.ProfileImageId, Valid: true}
	}
	if record.ThemeFrom == "" || record.ThemeTo == "" {
		record.ThemeFrom = zipcard.DefaultTheme.From
		record.ThemeTo = zipcard.DefaultTheme.To
	}
	return record
}

// socialsFromMap inverts the label-keyed map into an ordered list. Map
// insertion order is gone, so labels sort lexicographically for a stable
// display order.
func socialsFromMap(links map[string]string) []zipcard.SocialLink {
	socials := make([]zipcard.SocialLink, 0, len(links))
	for label, url := range links {
		socials = append(socials, zipcard.SocialLink{Label: label, Url: url})
	}
	sort.Slice(socials, func(i, j int) bool {
		return socials[i].Label < socials[j].Label
	})
	return socials
}

func socialsToMap(socials []zipcard.SocialLink) map[string]string {
	links := make(map[string]string, len(socials))
	for _, social := range socials {
		label := strings.ToLower(strings.TrimSpace(social.Label))
		if label == "" || strings.TrimSpace(social.Url) == "" {
			continue
		}
		links[label] = social.Url
	}
	return links
}

type ProfileStore struct {
	DB *bun.DB
}

var _ zipcard.ProfileStore = (*ProfileStore)(nil)

func (s *ProfileStore) ByUserId(ctx context.Context, userId zipcard.UserId) (zipcard.ProfileDocument, error) {
	profile := new(Profile)
	err := s.DB.NewSelect().
		Model(profile).
		Where(`user_id=?`, int64(userId)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zipcard.ProfileDocument{}, zipcard.ErrProfileNotFound
		}
		return zipcard.ProfileDocument{}, &zipcard.StorageError{Op: "select profile", Err: err}
	}
	return profile.ToDomain(), nil
}

func (s *ProfileStore) ByUsername(ctx context.Context, username string) (zipcard.ProfileDocument, error) {
	profile := new(Profile)
	err := s.DB.NewSelect().
		Model(profile).
		Where(`username=?`, username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zipcard.ProfileDocument{}, zipcard.ErrProfileNotFound
		}
		return zipcard.ProfileDocument{}, &zipcard.StorageError{Op: "select profile", Err: err}
	}
	return profile.ToDomain(), nil
}

// Save upserts the whole row keyed by user id. Last writer wins; there is
// no field-level merge.
func (s *ProfileStore) Save(ctx context.Context, doc zipcard.ProfileDocument) error {
	record := recordFromDomain(doc)
	_, err := s.DB.NewInsert().
		Model(&record).
		On(`CONFLICT (user_id) DO UPDATE SET ` +
			`username=EXCLUDED.username, full_name=EXCLUDED.full_name, ` +
			`title=EXCLUDED.title, bio=EXCLUDED.bio, phone=EXCLUDED.phone, ` +
			`location=EXCLUDED.location, website=EXCLUDED.website, ` +
			`social_links=EXCLUDED.social_links, services=EXCLUDED.services, ` +
			`photo_ids=EXCLUDED.photo_ids, photo_widgets=EXCLUDED.photo_widgets, ` +
			`profile_image_id=EXCLUDED.profile_image_id, ` +
			`theme_from=EXCLUDED.theme_from, theme_to=EXCLUDED.theme_to`).
		Exec(ctx)
	if err != nil {
		return &zipcard.StorageError{Op: "upsert profile", Err: err}
	}
	return nil
}
