package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotenvIfPresent reads ./.env for development. Existing variables win,
// and it is a no-op in production or when the file is absent.
func LoadDotenvIfPresent() error {
	if strings.EqualFold(os.Getenv("RECIPEBOX_ENV"), "production") {
		return nil
	}
	if _, err := os.Stat(".env"); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(".env")
}
