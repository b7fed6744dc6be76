package model

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	Plan         PlanType
	RegisteredAt time.Time
	LastActiveAt time.Time
}

func NewUser(id, email, displayName string, plan PlanType) *User {
	return &User{
		ID:           id,
		Email:        email,
		DisplayName:  displayName,
		Plan:         plan,
		RegisteredAt: time.Now(),
	}
}
