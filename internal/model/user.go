package model

// UserDetails is a profile mutation. Empty fields are omitted on the wire.
type UserDetails struct {
	Name         string         `json:"name,omitempty"`
	Username     string         `json:"username,omitempty"`
	Email        string         `json:"email,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Picture      string         `json:"picture,omitempty"`
	Gender       string         `json:"gender,omitempty"`
	BirthYear    int            `json:"byear,omitempty"`
	Custom       map[string]any `json:"custom,omitempty"`
}

// User detail field names as they appear in property filters.
const (
	UserName         = "name"
	UserUsername     = "username"
	UserEmail        = "email"
	UserOrganization = "organization"
	UserPhone        = "phone"
	UserPicture      = "picture"
	UserGender       = "gender"
	UserBirthYear    = "byear"
	UserCustom       = "custom"
)

// IsEmpty reports whether d carries no fields.
func (d *UserDetails) IsEmpty() bool {
	return d.Name == "" && d.Username == "" && d.Email == "" &&
		d.Organization == "" && d.Phone == "" && d.Picture == "" &&
		d.Gender == "" && d.BirthYear == 0 && len(d.Custom) == 0
}

// Feature is a consent bucket.
type Feature string

const (
	FeatureSessions    Feature = "sessions"
	FeatureEvents      Feature = "events"
	FeatureViews       Feature = "views"
	FeatureScrolls     Feature = "scrolls"
	FeatureClicks      Feature = "clicks"
	FeatureForms       Feature = "forms"
	FeatureCrashes     Feature = "crashes"
	FeatureAttribution Feature = "attribution"
	FeatureUsers       Feature = "users"
	FeatureStarRating  Feature = "star-rating"
	FeatureFeedback    Feature = "feedback"
	FeatureLocation    Feature = "location"
	FeatureContent     Feature = "content"
)

// Features lists every consent bucket.
var Features = []Feature{
	FeatureSessions, FeatureEvents, FeatureViews, FeatureScrolls,
	FeatureClicks, FeatureForms, FeatureCrashes, FeatureAttribution,
	FeatureUsers, FeatureStarRating, FeatureFeedback, FeatureLocation,
	FeatureContent,
}

// Content is a block returned by the content endpoint after a journey trigger.
type Content struct {
	HTML string         `json:"html"`
	Geo  map[string]any `json:"geo,omitempty"`
}

// Valid reports whether c carries something to display.
func (c *Content) Valid() bool {
	return c != nil && c.HTML != ""
}
