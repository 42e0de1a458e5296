// ABOUTME: Store interface for persisting the opaque support session between runs
// ABOUTME: Implementations never fail loudly; storage problems degrade to "no session"

package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Mundir-Doom/loop-support/internal/supportapi"
)

// StorageKey is the logical key under which the session is persisted.
const StorageKey = "support-session"

// errMalformed marks persisted data that decoded but carries no session id.
var errMalformed = errors.New("stored session has no sessionId")

// Store persists a single session. Load reports absence instead of failing;
// Save and Clear swallow errors after logging them, so a broken or disabled
// storage backend never breaks the caller.
type Store interface {
	Load() (supportapi.Session, bool)
	Save(s supportapi.Session)
	Clear()
}

// decodeSession parses the persisted document {"sessionId": "..."}.
func decodeSession(data []byte) (supportapi.Session, error) {
	var s supportapi.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return supportapi.Session{}, fmt.Errorf("decoding stored session: %w", err)
	}
	if s.ID == "" {
		return supportapi.Session{}, errMalformed
	}
	return s, nil
}

func encodeSession(s supportapi.Session) ([]byte, error) {
	return json.Marshal(s)
}
