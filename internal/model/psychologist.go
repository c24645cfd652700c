package model

// Audience values derived from the directory's free-text "public" field.
const (
	AudienceAdults    = "Adultes"
	AudienceTeenagers = "Adolescents"
	AudienceChildren  = "Enfants"
)

// Psychologist is a practitioner listed in the public directory.
type Psychologist struct {
	ExternalID        string   `json:"id_out"`
	FirstName         string   `json:"first_name"`
	LastName          string   `json:"last_name"`
	Address           string   `json:"address"`
	AddressAdditional string   `json:"address_additional,omitempty"`
	Location          Point    `json:"location"`
	Phone             string   `json:"phone,omitempty"`
	Email             string   `json:"email,omitempty"`
	Website           string   `json:"website,omitempty"`
	Languages         string   `json:"languages,omitempty"`
	Audiences         []string `json:"public"`
	Teleconsultation  bool     `json:"teleconsultation"`
	Visible           bool     `json:"visible"`
	CityIDs           []int64  `json:"city_ids"`
}

// Nearby pairs a psychologist with its distance to a search center.
type Nearby struct {
	Psychologist Psychologist `json:"psychologist"`
	DistanceKm   float64      `json:"distance_km"`
}
