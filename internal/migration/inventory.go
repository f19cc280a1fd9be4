package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

// inventory walks the embedded up-migrations and returns the highest
// version plus a deterministic checksum of their contents.
func inventory() (uint, string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		return 0, "", fmt.Errorf("list migrations: %w", err)
	}

	var names []string
	var maxVersion uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, err := strconv.ParseUint(strings.SplitN(name, "_", 2)[0], 10, 32)
		if err != nil {
			return 0, "", fmt.Errorf("invalid migration filename: %s", name)
		}
		if uint(version) > maxVersion {
			maxVersion = uint(version)
		}
		names = append(names, name)
	}
	if maxVersion == 0 {
		return 0, "", errors.New("no embedded migrations found")
	}

	sort.Strings(names)
	hasher := sha256.New()
	for _, name := range names {
		content, err := embeddedMigrations.ReadFile(migrationsDir + "/" + name)
		if err != nil {
			return 0, "", fmt.Errorf("read migration %s: %w", name, err)
		}
		hasher.Write([]byte(name))
		hasher.Write([]byte{0})
		hasher.Write(content)
		hasher.Write([]byte{0})
	}
	return maxVersion, hex.EncodeToString(hasher.Sum(nil)), nil
}
