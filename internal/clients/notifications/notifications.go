package notifications

// Notifier receives operator-facing events from the credential layer.
type Notifier interface {
	NotifyCredentialFallback(reason string)
	NotifyFetchExhausted(target string)
	Test() error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) NotifyCredentialFallback(string) {}
func (Nop) NotifyFetchExhausted(string)     {}
func (Nop) Test() error                     { return nil }
