package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261009-143210",
		Description: "Add object storage key to scans",
		Up: []string{
			// Set when the uploaded image was persisted to object storage
			`ALTER TABLE scans ADD COLUMN image_key TEXT`,
		},
	})
}
