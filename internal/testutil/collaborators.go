package testutil

import "sync"

// StaticIdentity reports a fixed user. Set UserID to "" to simulate sign-out.
type StaticIdentity struct {
	mu     sync.Mutex
	userID string
}

func NewStaticIdentity(userID string) *StaticIdentity {
	return &StaticIdentity{userID: userID}
}

func (s *StaticIdentity) CurrentUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

// SetUserID switches the signed-in user.
func (s *StaticIdentity) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
}

// Notification is one call recorded by RecordingNotifier.
type Notification struct {
	Title string
	Body  string
}

// RecordingNotifier records notification requests.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) RequestNotification(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Title: title, Body: body})
}

// Sent returns a copy of the recorded notifications.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}
