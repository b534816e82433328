// Package push handles notification payloads and click routing. Incoming
// payloads are merged over fixed defaults so a malformed or empty push still
// produces a presentable notification, and clicks either focus an existing
// session or open a fresh one at the root.
package push

import (
	"encoding/json"
	"log/slog"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Action is a button attached to a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is the displayable payload of a push event.
type Notification struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon,omitempty"`
	Badge              string         `json:"badge,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	RequireInteraction bool           `json:"requireInteraction"`
	Actions            []Action       `json:"actions,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// DefaultNotification returns the baseline notification shown when a push
// carries no payload or an unparseable one.
func DefaultNotification() Notification {
	return Notification{
		Title:              "Spark",
		Body:               "You have a new notification.",
		Icon:               "/icons/icon-192x192.svg",
		Badge:              "/icons/icon-72x72.svg",
		Tag:                "spark-notification",
		RequireInteraction: true,
		Actions: []Action{
			{Action: "open", Title: "Open", Icon: "/icons/icon-72x72.svg"},
			{Action: "close", Title: "Close"},
		},
	}
}

// Parse merges a push payload over the defaults. Absent fields keep their
// default values; a payload that fails to parse yields the defaults unchanged.
func Parse(payload []byte) Notification {
	n := DefaultNotification()
	if len(payload) == 0 {
		return n
	}
	if err := json.Unmarshal(payload, &n); err != nil {
		slog.Warn("unparseable push payload, using defaults",
			"component", "push",
			"error", err,
		)
		return DefaultNotification()
	}
	return n
}

// ClickOutcome is what a notification click resolves to.
type ClickOutcome string

const (
	// OutcomeNone dismisses the notification without touching any session.
	OutcomeNone ClickOutcome = "none"
	// OutcomeFocus brings an already-open session to the foreground.
	OutcomeFocus ClickOutcome = "focus"
	// OutcomeOpen starts a new session at the application root.
	OutcomeOpen ClickOutcome = "open"
)

// ClickDecision is the resolved routing for a notification click.
type ClickDecision struct {
	Outcome ClickOutcome `json:"outcome"`
	Target  string       `json:"target,omitempty"`
}

// ResolveClick routes a notification click. The close action is a pure
// dismissal; any other action focuses the first session already on the
// origin, or opens a new one at the root when none exists.
func ResolveClick(action, origin string, openSessions []string) ClickDecision {
	if action == "close" {
		return ClickDecision{Outcome: OutcomeNone}
	}
	for _, url := range openSessions {
		if strings.Contains(url, origin) {
			return ClickDecision{Outcome: OutcomeFocus, Target: url}
		}
	}
	return ClickDecision{Outcome: OutcomeOpen, Target: "/"}
}

// Subscription is a client push endpoint with its encryption keys.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Sender delivers notifications to push subscriptions. A Sender with empty
// VAPID keys is disabled and drops sends silently.
type Sender struct {
	subscriber string
	publicKey  string
	privateKey string
}

// NewSender creates a sender with the given VAPID identity.
func NewSender(subscriber, publicKey, privateKey string) *Sender {
	return &Sender{subscriber: subscriber, publicKey: publicKey, privateKey: privateKey}
}

// Configured reports whether the sender has a usable VAPID identity.
func (s *Sender) Configured() bool {
	return s.publicKey != "" && s.privateKey != "" && s.subscriber != ""
}

// Send delivers the notification to one subscription.
func (s *Sender) Send(sub Subscription, n Notification) error {
	if !s.Configured() {
		slog.Debug("push sender not configured, dropping notification", "component", "push")
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             30,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	slog.Info("push notification sent",
		"component", "push",
		"status", resp.StatusCode,
		"tag", n.Tag,
	)
	return nil
}
