package transcript

import (
	"time"

	"moviegpt/internal/backend"
)

// Role identifies who produced an entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a backend history type onto a Role
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), true
	}
	return "", false
}

// Entry is a single message in the transcript
type Entry struct {
	ID        string                `json:"id"`
	Role      Role                  `json:"role"`
	Text      string                `json:"text"`
	Results   []backend.QueryResult `json:"results,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}
