package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/xconstruct/go-pushbullet"

	"cineplex/internal/utils"
)

// DefaultCooldown limits how often the same kind of note is pushed.
const DefaultCooldown = 10 * time.Minute

type pusher interface {
	PushNote(iden string, title, body string) error
}

// PushbulletClient implements the Notifier interface for Pushbullet.
type PushbulletClient struct {
	pb       *pushbullet.Client
	push     pusher
	logger   *utils.Logger
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewPushbulletClient creates a new client for sending Pushbullet notifications.
func NewPushbulletClient(apiKey string, logger *utils.Logger) *PushbulletClient {
	pb := pushbullet.New(apiKey)
	return &PushbulletClient{
		pb:       pb,
		push:     pb,
		logger:   logger,
		cooldown: DefaultCooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// sendPush sends a note to all of the user's devices unless a note of the
// same kind went out within the cooldown.
func (c *PushbulletClient) sendPush(kind, title, body string) {
	c.mu.Lock()
	now := c.now()
	if at, ok := c.last[kind]; ok && now.Sub(at) < c.cooldown {
		c.mu.Unlock()
		return
	}
	c.last[kind] = now
	c.mu.Unlock()

	go func() {
		// Empty device iden means all devices.
		if err := c.push.PushNote("", title, body); err != nil {
			c.logger.Error("Error sending Pushbullet notification:", err)
		}
	}()
}

func (c *PushbulletClient) NotifyCredentialFallback(reason string) {
	c.sendPush("fallback", "Cineplex: using fallback API key",
		fmt.Sprintf("The key issuer could not be reached (%s). Requests now use the fallback key.", reason))
}

func (c *PushbulletClient) NotifyFetchExhausted(target string) {
	c.sendPush("exhausted", "Cineplex: metadata API unavailable",
		fmt.Sprintf("Gave up on %s after spending the retry budget.", target))
}

// Test verifies the API key is valid by fetching user info.
func (c *PushbulletClient) Test() error {
	_, err := c.pb.Me()
	if err != nil {
		return fmt.Errorf("pushbullet authentication failed: %w", err)
	}
	return nil
}
