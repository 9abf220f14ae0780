package model

// Session is the bearer credential held for a profile.
// ExpiresAt is epoch milliseconds.
type Session struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Valid reports whether the session can be used at nowMillis.
func (s Session) Valid(nowMillis int64) bool {
	return s.AccessToken != "" && s.ExpiresAt > 0 && nowMillis < s.ExpiresAt
}

// Pharmacy is a row of the Pharmacies tab.
type Pharmacy struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	City       string   `json:"city,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Brick      string   `json:"brick,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	CreatedAt  string   `json:"createdAt"`
}

// Doctor is a row of the Doctors tab.
type Doctor struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Specialty string   `json:"specialty,omitempty"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty"`
	Brick     string   `json:"brick,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	CreatedAt string   `json:"createdAt"`
}

// Dataset is the joined result of reading both tabs.
type Dataset struct {
	Pharmacies []Pharmacy `json:"pharmacies"`
	Doctors    []Doctor   `json:"doctors"`
}

// ProfileEntry is one persisted key of a browser profile, as stored in DynamoDB.
type ProfileEntry struct {
	ProfileID string `json:"profile_id" dynamodbav:"profile_id"`
	Key       string `json:"key" dynamodbav:"key"`
	Value     string `json:"value" dynamodbav:"value"`
	UpdatedAt string `json:"updated_at" dynamodbav:"updated_at"`
}
