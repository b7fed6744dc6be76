package model

import (
	"fmt"
	"time"
)

// SessionRecord mirrors one row of user_sessions. The session id is scoped
// by device so a user can be known on several devices while only one of
// them holds the active session.
type SessionRecord struct {
	UserID     string
	SessionID  string
	DeviceInfo string
	IsActive   bool
	LastSeen   time.Time
}

// SessionID derives the store key for a (user, device) pair. The device id
// is a locally persisted random token, never an authentication credential.
func SessionID(userID, deviceID string) string {
	return fmt.Sprintf("%s:%s", userID, deviceID)
}

func NewSessionRecord(userID, deviceID, deviceInfo string) *SessionRecord {
	return &SessionRecord{
		UserID:     userID,
		SessionID:  SessionID(userID, deviceID),
		DeviceInfo: deviceInfo,
		IsActive:   true,
		LastSeen:   time.Now(),
	}
}
