package config

import "fmt"

// Validate checks ranges the services rely on.
// Returns an error describing the first validation failure, or nil if valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Partitioning.ChunkSize <= 0 {
		return fmt.Errorf("partitioning: chunk_size must be positive")
	}
	if c.Queue.ProcessingDestination == "" {
		return fmt.Errorf("queue: processing_destination is required")
	}
	if c.Retention.Enabled && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention: interval must be positive when enabled")
	}
	for name, days := range map[string]int{
		"super_transient_days": c.Retention.SuperTransientDays,
		"acctest_days":         c.Retention.AccTestDays,
		"transient_days":       c.Retention.TransientDays,
		"test_days":            c.Retention.TestDays,
		"expiration_days":      c.Retention.ExpirationDays,
	} {
		if days <= 0 {
			return fmt.Errorf("retention: %s must be positive", name)
		}
	}
	if c.Retention.AbandonedAfterDays < 0 {
		return fmt.Errorf("retention: abandoned_after_days must not be negative")
	}
	switch c.Storage.Type {
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("storage: local_path is required for local storage")
		}
	case "", "s3", "r2", "s3compatible":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage: bucket is required")
		}
	default:
		return fmt.Errorf("storage: unknown type %q", c.Storage.Type)
	}
	return nil
}
