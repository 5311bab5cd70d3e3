package migrations

func init() {
	Register(Migration{
		Timestamp:   "20261002-091500",
		Description: "Initial schema",
		Up: []string{
			// Profiles - one per auth provider user, plan mirrors the entitlement
			`CREATE TABLE IF NOT EXISTS profiles (
				id TEXT PRIMARY KEY,
				plan TEXT NOT NULL DEFAULT 'free' CHECK (plan IN ('free', 'pro')),
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Entitlements - source of truth for paid access, written by the Stripe reconciler.
			// Rows are never deleted; cancellation sets is_pro = 0 and period_end = now.
			`CREATE TABLE IF NOT EXISTS entitlements (
				user_id TEXT PRIMARY KEY,
				is_pro INTEGER NOT NULL DEFAULT 0,
				period_end TEXT,
				stripe_customer_id TEXT,
				stripe_subscription_id TEXT,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_entitlements_stripe_customer_id ON entitlements(stripe_customer_id)`,

			// Scans - identification history, also the daily free quota counter
			`CREATE TABLE IF NOT EXISTS scans (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				top_species TEXT,
				top_common_name TEXT,
				confidence REAL,
				thumbnail_url TEXT,
				raw_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scans_user_created ON scans(user_id, created_at)`,
		},
	})
}
