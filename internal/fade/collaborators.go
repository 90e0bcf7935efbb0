package fade

// Identity reports the signed-in user. ok is false when nobody is signed in,
// in which case sync is disabled and only local operations are valid.
type Identity interface {
	CurrentUserID() (userID string, ok bool)
}

// Notifier delivers a notification request. Delivery is fire-and-forget.
type Notifier interface {
	RequestNotification(title, body string)
}
