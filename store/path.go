package store

import (
	"github.com/arloliu/cohort/internal/kvutil"
	"github.com/google/uuid"
)

// canonical validates path and returns it in "/a/b" form.
func canonical(path string) (string, error) {
	key, err := kvutil.PathToKey(path)
	if err != nil {
		return "", err
	}

	return kvutil.KeyToPath(key), nil
}

// pushKey returns a new time-ordered child key.
func pushKey() string {
	return uuid.Must(uuid.NewV7()).String()
}
