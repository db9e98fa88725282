package contextx

import "context"

// Key is a private type to avoid collisions in request context keys.
type Key string

const (
	// UserIDKey holds the authenticated user's ID (string).
	UserIDKey Key = "userID"
	// SessionIDKey holds the current session row ID (string).
	SessionIDKey Key = "sessionID"
	// DeviceIDKey holds the client device identifier (string).
	DeviceIDKey Key = "deviceID"
	// SessionTokenKey holds the raw session token the request authenticated with.
	SessionTokenKey Key = "sessionToken"
	// ClientKey holds the *Client describing the caller.
	ClientKey Key = "client"
)

// Client is what the server knows about the caller of the current request.
type Client struct {
	IP          string
	UserAgent   string
	Country     string
	City        string
	Fingerprint string
}

// UserID returns the authenticated user's ID, or "" when the request is anonymous.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// SessionID returns the current session row ID.
func SessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

// SessionToken returns the token the request authenticated with.
func SessionToken(ctx context.Context) string {
	v, _ := ctx.Value(SessionTokenKey).(string)
	return v
}

// DeviceID returns the client device identifier resolved for this request.
func DeviceID(ctx context.Context) string {
	v, _ := ctx.Value(DeviceIDKey).(string)
	return v
}

// ClientFrom returns the caller description, never nil.
func ClientFrom(ctx context.Context) *Client {
	if c, ok := ctx.Value(ClientKey).(*Client); ok && c != nil {
		return c
	}
	return &Client{}
}
