/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage persists per-room scheduling state across restarts, so a
// restart neither re-applies values needlessly nor forgets manual overrides.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RoomRecord is the persisted state of one room.
type RoomRecord struct {
	RoomName     string `gorm:"primaryKey"`
	ValueJSON    string
	Markers      string
	OverrideJSON string
	UpdatedAt    time.Time
}

// RoomState is the decoded form handed to callers.
type RoomState struct {
	RoomName  string
	Value     any
	Markers   []string
	Override  any
	UpdatedAt time.Time
}

// Store wraps the sqlite database.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&RoomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRoom upserts a room's state.
func (s *Store) SaveRoom(st RoomState) error {
	record := RoomRecord{RoomName: st.RoomName, UpdatedAt: time.Now()}
	var err error
	if record.ValueJSON, err = encode(st.Value); err != nil {
		return fmt.Errorf("room %s: encode value: %w", st.RoomName, err)
	}
	if record.OverrideJSON, err = encode(st.Override); err != nil {
		return fmt.Errorf("room %s: encode override: %w", st.RoomName, err)
	}
	markers, err := json.Marshal(st.Markers)
	if err != nil {
		return fmt.Errorf("room %s: encode markers: %w", st.RoomName, err)
	}
	record.Markers = string(markers)
	return s.db.Save(&record).Error
}

// LoadRoom returns a room's persisted state, if any.
func (s *Store) LoadRoom(roomName string) (RoomState, bool, error) {
	var record RoomRecord
	err := s.db.First(&record, "room_name = ?", roomName).Error
	if err == gorm.ErrRecordNotFound {
		return RoomState{}, false, nil
	}
	if err != nil {
		return RoomState{}, false, err
	}
	st, err := decodeRecord(record)
	return st, err == nil, err
}

// LoadAll returns every persisted room state.
func (s *Store) LoadAll() ([]RoomState, error) {
	var records []RoomRecord
	if err := s.db.Find(&records).Error; err != nil {
		return nil, err
	}
	states := make([]RoomState, 0, len(records))
	for _, record := range records {
		st, err := decodeRecord(record)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// DeleteRoom drops a room's persisted state.
func (s *Store) DeleteRoom(roomName string) error {
	return s.db.Delete(&RoomRecord{}, "room_name = ?", roomName).Error
}

func decodeRecord(record RoomRecord) (RoomState, error) {
	st := RoomState{RoomName: record.RoomName, UpdatedAt: record.UpdatedAt}
	var err error
	if st.Value, err = decode(record.ValueJSON); err != nil {
		return st, fmt.Errorf("room %s: decode value: %w", record.RoomName, err)
	}
	if st.Override, err = decode(record.OverrideJSON); err != nil {
		return st, fmt.Errorf("room %s: decode override: %w", record.RoomName, err)
	}
	if record.Markers != "" {
		if err := json.Unmarshal([]byte(record.Markers), &st.Markers); err != nil {
			return st, fmt.Errorf("room %s: decode markers: %w", record.RoomName, err)
		}
	}
	return st, nil
}

func encode(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	return string(data), err
}

func decode(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	var v any
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
