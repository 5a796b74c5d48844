package redis

import "fmt"

const ns = "oneday:v1"

func KeySession(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d", ns, sessionID)
}

func KeySessionAvailability(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d:availability", ns, sessionID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemHold(sessionID, userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:holds:%d:%d:%s", ns, sessionID, userID, idemKey)
}

func ChannelSessionsChanged() string {
	return ns + ":sessions:changed"
}
