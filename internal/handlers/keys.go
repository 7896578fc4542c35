package handlers

import (
	"net/http"
	"sync"
	"time"

	"cineplex/internal/clients/credentials"
)

// KeyIssuer serves the pool of metadata API keys to credential stores. The
// key list can be swapped at runtime when the config is reloaded.
type KeyIssuer struct {
	mu   sync.RWMutex
	keys []string
	now  func() time.Time
}

func NewKeyIssuer(keys []string) *KeyIssuer {
	k := &KeyIssuer{now: time.Now}
	k.SetKeys(keys)
	return k
}

func (k *KeyIssuer) SetKeys(keys []string) {
	copied := append([]string(nil), keys...)
	k.mu.Lock()
	k.keys = copied
	k.mu.Unlock()
}

func (k *KeyIssuer) Keys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]string(nil), k.keys...)
}

func (k *KeyIssuer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	keys := k.Keys()
	if len(keys) == 0 {
		respondError(w, http.StatusInternalServerError, "Keys not configured")
		return
	}

	respondJSON(w, http.StatusOK, credentials.IssuerResponse{
		Status:    "success",
		Keys:      keys,
		Timestamp: k.now().Unix(),
		KeysCount: len(keys),
	})
}
