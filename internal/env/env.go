package env

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// Load reads the given .env files (default ".env") into the process
// environment. Missing files are ignored; variables already set win.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
