package domain

import (
	"strings"
	"time"
)

type Client struct {
	ID         int64
	UserID     int64
	Name       string
	Email      string
	HourlyRate *int64 // default rate in cents, nil = none
	Notes      string
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewClient creates a new client with required fields
func NewClient(userID int64, name string, hourlyRate *int64) *Client {
	now := time.Now().UTC()
	return &Client{
		UserID:     userID,
		Name:       strings.TrimSpace(name),
		HourlyRate: hourlyRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate returns an error if the client is invalid
func (c *Client) Validate() error {
	if c.UserID <= 0 {
		return Validation("user_id", "owner is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return Validation("name", "client name is required")
	}
	if c.HourlyRate != nil && *c.HourlyRate < 0 {
		return Validation("hourly_rate", "hourly rate cannot be negative")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return Validation("email", "email address is malformed")
	}
	return nil
}

type Project struct {
	ID         int64
	UserID     int64
	ClientID   int64
	Name       string
	HourlyRate *int64
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewProject creates a project under a client
func NewProject(userID, clientID int64, name string, hourlyRate *int64) *Project {
	now := time.Now().UTC()
	return &Project{
		UserID:     userID,
		ClientID:   clientID,
		Name:       strings.TrimSpace(name),
		HourlyRate: hourlyRate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (p *Project) Validate() error {
	if p.UserID <= 0 {
		return Validation("user_id", "owner is required")
	}
	if p.ClientID <= 0 {
		return Validation("client_id", "client is required")
	}
	if p.Name == "" {
		return Validation("name", "project name is required")
	}
	if p.HourlyRate != nil && *p.HourlyRate < 0 {
		return Validation("hourly_rate", "hourly rate cannot be negative")
	}
	return nil
}
