package types

import "strconv"

// Dependent is a single repository that depends on the scraped repository.
type Dependent struct {
	// AvatarURL links to the owner's avatar. Empty when the row had none.
	AvatarURL string `json:"avatar_url,omitempty" bson:"avatar_url,omitempty"`

	// Owner is the user or organization owning the dependent repository.
	Owner string `json:"owner" bson:"owner"`

	// Repository is the name of the dependent repository.
	Repository string `json:"repository" bson:"repository"`

	// Stars is the stargazer count shown on the listing.
	Stars int `json:"stars" bson:"stars"`

	// Forks is the fork count shown on the listing.
	Forks int `json:"forks" bson:"forks"`
}

// FullName returns "owner/repository".
func (d *Dependent) FullName() string {
	return d.Owner + "/" + d.Repository
}

// CSVHeader is the column order used by ToRecord.
var CSVHeader = []string{"owner", "repository", "stars", "forks", "avatar_url"}

// ToRecord returns the dependent as a CSV row in CSVHeader order.
func (d *Dependent) ToRecord() []string {
	return []string{
		d.Owner,
		d.Repository,
		strconv.Itoa(d.Stars),
		strconv.Itoa(d.Forks),
		d.AvatarURL,
	}
}
