// Package auditd persists engine events to a relational store. Cancelled
// proposals are deleted from the node's state, so the audit trail is the only
// place their history survives.
package auditd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"proposalpay/core/events"
)

// EventRecord is one persisted engine event.
type EventRecord struct {
	ID         uint   `gorm:"primaryKey"`
	EventType  string `gorm:"size:64;index"`
	ProposalID uint64 `gorm:"index"`
	Proposer   string `gorm:"size:64;index"`
	Receiver   string `gorm:"size:64;index"`
	Status     string `gorm:"size:16"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Recorder writes engine events into the audit store. It implements
// events.Emitter and is meant to sit behind a fanout so a slow database never
// blocks state transitions silently; write failures are logged, not returned.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the audit database and migrates the schema.
func Open(dsn string, logger *slog.Logger) (*Recorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("auditd: open database: %w", err)
	}
	return NewRecorder(db, logger)
}

// NewRecorder wraps an existing gorm handle. Tests use this with sqlite.
func NewRecorder(db *gorm.DB, logger *slog.Logger) (*Recorder, error) {
	if db == nil {
		return nil, fmt.Errorf("auditd: nil database")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("auditd: migrate: %w", err)
	}
	return &Recorder{db: db, logger: logger.With("component", "auditd")}, nil
}

type payloadCarrier interface {
	Event() *events.Payload
}

// Emit implements events.Emitter.
func (r *Recorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	record := EventRecord{EventType: evt.EventType()}
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			record = recordFromPayload(payload)
		}
	}
	if err := r.db.Create(&record).Error; err != nil {
		r.logger.Error("audit write failed", "error", err, "eventType", record.EventType)
	}
}

func recordFromPayload(payload *events.Payload) EventRecord {
	record := EventRecord{EventType: payload.Type}
	if raw, ok := payload.Attributes["id"]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			record.ProposalID = id
		}
	}
	record.Proposer = payload.Attributes["proposer"]
	record.Receiver = payload.Attributes["receiver"]
	record.Status = payload.Attributes["status"]
	if encoded, err := json.Marshal(payload.Attributes); err == nil {
		record.Attributes = string(encoded)
	}
	return record
}

// History returns all recorded events for a proposal in insertion order. It
// works for cancelled proposals too, which is the point of the audit store.
func (r *Recorder) History(proposalID uint64) ([]EventRecord, error) {
	var records []EventRecord
	err := r.db.Where("proposal_id = ?", proposalID).Order("id asc").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("auditd: history: %w", err)
	}
	return records, nil
}

// RecentByType returns the newest events of one type, capped at limit.
func (r *Recorder) RecentByType(eventType string, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []EventRecord
	err := r.db.Where("event_type = ?", eventType).Order("id desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("auditd: recent: %w", err)
	}
	return records, nil
}
