package repository

// Option applies a configuration option to a store backend.
type Option func(*storeConfig)

// storeConfig holds knobs shared by the SQLite and memory backends.
type storeConfig struct {
	trainersFlag bool
}

func defaultStoreConfig() storeConfig {
	return storeConfig{trainersFlag: true}
}

// WithTrainersFlag selects the trainers merge policy. When true (the
// default), delta merges treat trainers as a flag and clamp the stored
// value to 1; when false, trainers accumulates like the other counters.
func WithTrainersFlag(flag bool) Option {
	return func(c *storeConfig) {
		c.trainersFlag = flag
	}
}
