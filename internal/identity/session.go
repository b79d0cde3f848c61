package identity

// Session describes the current authentication state of the running client.
type Session struct {
	UserID   string
	LoggedIn bool
}

// SessionFunc reports the current session. The persistence adapter calls it
// once per operation to pick a backend; it must never be cached across
// calls, so a sign-out is picked up by the very next operation.
type SessionFunc func() Session

// Anonymous returns the logged-out session.
func Anonymous() Session {
	return Session{}
}

// LocalUserID is the user id used for rows written while logged out.
const LocalUserID = "local"

// EffectiveUserID returns the session's user id, or LocalUserID when
// logged out.
func (s Session) EffectiveUserID() string {
	if s.LoggedIn && s.UserID != "" {
		return s.UserID
	}
	return LocalUserID
}
