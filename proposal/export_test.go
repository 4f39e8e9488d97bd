package proposal

// Exported aliases for testing internal functions from
// the proposal_test package.

// KindForTest exposes kindFor.
var KindForTest = kindFor

// WithDefaultsForTest exposes Config.withDefaults.
func WithDefaultsForTest(c Config) Config {
	return c.withDefaults()
}
