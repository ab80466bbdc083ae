package config

import "fmt"

// DSN returns a gorm-compatible data source name for the configured
// database driver.
func (c *Config) DSN() string {
	switch c.Database.Type {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			c.Database.Host, c.Database.Username, c.Database.Password, c.Database.Database, c.Database.Port)
	default:
		return c.Database.Path
	}
}
