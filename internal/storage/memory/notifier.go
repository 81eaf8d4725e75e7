package memory

import (
	"log/slog"
	"sync"

	"github.com/yndnr/dzmesh-go/internal/core/domain"
	"github.com/yndnr/dzmesh-go/internal/core/service"
)

// DefaultNotificationHistory is the per-character record limit.
const DefaultNotificationHistory = 64

// Delivery is one recorded notification.
type Delivery struct {
	CharacterID   uint32
	CharacterName string
	Notification  service.Notification
}

// RecordingNotifier implements service.Notifier for zones without a game
// client connection. Every notification is logged and kept in a bounded
// per-character history for inspection.
type RecordingNotifier struct {
	mu      sync.Mutex
	history map[uint32][]Delivery
	limit   int
	logger  *slog.Logger
}

// NotifierOption configures a RecordingNotifier.
type NotifierOption func(*RecordingNotifier)

// WithHistory sets how many notifications are kept per character.
func WithHistory(n int) NotifierOption {
	return func(r *RecordingNotifier) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(r *RecordingNotifier) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecordingNotifier creates a notifier.
func NewRecordingNotifier(opts ...NotifierOption) *RecordingNotifier {
	r := &RecordingNotifier{
		history: make(map[uint32][]Delivery),
		limit:   DefaultNotificationHistory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notify records n for c.
func (r *RecordingNotifier) Notify(c *domain.Character, n service.Notification) {
	if c == nil {
		return
	}
	d := Delivery{CharacterID: c.ID, CharacterName: c.Name, Notification: n}

	r.mu.Lock()
	h := append(r.history[c.ID], d)
	if len(h) > r.limit {
		h = h[len(h)-r.limit:]
	}
	r.history[c.ID] = h
	r.mu.Unlock()

	if n.Kind == service.NotifyMessage {
		r.logger.Info("notice", "character", c.Name, "notice", uint16(n.Notice), "text", n.Text())
		return
	}
	r.logger.Debug("notification", "character", c.Name, "kind", n.Kind.String(), "expedition_id", n.ExpeditionID)
}

// History returns the recorded notifications of a character, oldest first.
func (r *RecordingNotifier) History(characterID uint32) []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.history[characterID]
	out := make([]Delivery, len(h))
	copy(out, h)
	return out
}

// Forget drops a character's history, typically on disconnect.
func (r *RecordingNotifier) Forget(characterID uint32) {
	r.mu.Lock()
	delete(r.history, characterID)
	r.mu.Unlock()
}
