package core

import (
	"encoding/json"
	"time"
)

type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionError     ConnectionStatus = "error"
	ConnectionDisabled  ConnectionStatus = "disabled"
)

type SyncStatus string

const (
	SyncNever   SyncStatus = "never"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
	SyncPartial SyncStatus = "partial"
)

type IntegrationConnection struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	DomainID       *string          `json:"domain_id,omitempty" db:"domain_id"`
	Provider       string           `json:"provider" db:"provider"`
	Category       string           `json:"category" db:"category"`
	Status         ConnectionStatus `json:"status" db:"status"`
	HasCredential  bool             `json:"has_credential" db:"has_credential"`
	LastSyncAt     *time.Time       `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastSyncStatus SyncStatus       `json:"last_sync_status" db:"last_sync_status"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	Config         json.RawMessage  `json:"config,omitempty" db:"config"`
}

// ShardHints are the provider-specific routing hints some connections carry
// in their config payload.
type ShardHints struct {
	ShardKey  string `json:"shardKey"`
	Shard     string `json:"shard"`
	Region    string `json:"region"`
	AccountID string `json:"accountId"`
}

// Key returns the shard identifier, preferring shardKey over shard.
func (h ShardHints) Key() string {
	if h.ShardKey != "" {
		return h.ShardKey
	}
	return h.Shard
}

// Hints decodes the shard hints from the connection config. A missing or
// malformed payload yields empty hints.
func (c IntegrationConnection) Hints() ShardHints {
	var h ShardHints
	if len(c.Config) == 0 {
		return h
	}
	if err := json.Unmarshal(c.Config, &h); err != nil {
		return ShardHints{}
	}
	return h
}

type ShardHealthRecord struct {
	Provider         string     `json:"provider" db:"provider"`
	ShardKey         string     `json:"shard_key" db:"shard_key"`
	AccountID        string     `json:"account_id" db:"account_id"`
	Region           string     `json:"region" db:"region"`
	PenaltyScore     float64    `json:"penalty_score" db:"penalty_score"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty" db:"cooldown_until"`
	SuccessCount     int64      `json:"success_count" db:"success_count"`
	RateLimitedCount int64      `json:"rate_limited_count" db:"rate_limited_count"`
	FailureCount     int64      `json:"failure_count" db:"failure_count"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}
