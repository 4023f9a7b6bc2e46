package store

// HashEntry maps a content fingerprint to the single canonical stored
// object. One entry exists per distinct fingerprint ever stored.
type HashEntry struct {
	Hash       string `bson:"hash" json:"hash"`
	Filename   string `bson:"filename" json:"filename"`
	URL        string `bson:"url" json:"url"`
	UploadedBy string `bson:"uploaded_by" json:"uploaded_by"`
}

// UploadRecord is one entry in a user's ledger. Multiple users may hold
// records pointing at the same fingerprint and URL.
type UploadRecord struct {
	Filename string `bson:"filename" json:"filename"`
	URL      string `bson:"url" json:"url"`
	Hash     string `bson:"hash" json:"hash"`
}

// UserAccount is a user document with its embedded upload ledger.
type UserAccount struct {
	Username     string         `bson:"username" json:"username"`
	PasswordHash string         `bson:"password_hash" json:"-"`
	Uploads      []UploadRecord `bson:"uploads" json:"uploads"`
}
