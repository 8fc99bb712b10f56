package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	taskIDPrefix  = "task_"
	usageIDPrefix = "usage_"
)

var (
	taskIDPattern  = regexp.MustCompile(`^task_[a-zA-Z0-9]{24}$`)
	usageIDPattern = regexp.MustCompile(`^usage_[a-zA-Z0-9]{24}$`)
)

// NewTaskID generates a new task ID with the "task_" prefix followed
// by 24 cryptographically random alphanumeric characters.
func NewTaskID() string {
	return taskIDPrefix + randomAlphanumeric(idLength)
}

// NewUsageID generates a new usage record ID with the "usage_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewUsageID() string {
	return usageIDPrefix + randomAlphanumeric(idLength)
}

// ValidateTaskID checks whether the given string is a valid task ID.
func ValidateTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// ValidateUsageID checks whether the given string is a valid usage record ID.
func ValidateUsageID(id string) bool {
	return usageIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
