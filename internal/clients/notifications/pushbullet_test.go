package notifications

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cineplex/internal/utils"
)

type recordingPusher struct {
	mu     sync.Mutex
	titles []string
	done   chan struct{}
}

func (p *recordingPusher) PushNote(iden, title, body string) error {
	p.mu.Lock()
	p.titles = append(p.titles, title)
	p.mu.Unlock()
	p.done <- struct{}{}
	return nil
}

func TestPushbulletCooldownPerKind(t *testing.T) {
	rec := &recordingPusher{done: make(chan struct{}, 10)}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	client := NewPushbulletClient("token", utils.NewNopLogger())
	client.push = rec
	client.now = func() time.Time { return now }

	client.NotifyCredentialFallback("timeout")
	client.NotifyCredentialFallback("timeout")
	client.NotifyFetchExhausted("http://api/x")
	now = now.Add(DefaultCooldown + time.Second)
	client.NotifyCredentialFallback("timeout")

	for i := 0; i < 3; i++ {
		select {
		case <-rec.done:
		case <-time.After(2 * time.Second):
			t.Fatal("notification was not pushed")
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.titles, 3)
	assert.ElementsMatch(t, []string{
		"Cineplex: using fallback API key",
		"Cineplex: metadata API unavailable",
		"Cineplex: using fallback API key",
	}, rec.titles)
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = Nop{}
	n.NotifyCredentialFallback("x")
	n.NotifyFetchExhausted("y")
	assert.NoError(t, n.Test())
}
