// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
)

// Key layout. Room ids never contain '/' (enforced at the gateway boundary).
//
//	room/<roomID>/msg/<messageID>  message JSON, ids are UUIDv7 so keys sort by time
//	room/<roomID>/last             messageID
//	room/<roomID>/pins             JSON array of messageIDs
const maxConflictRetries = 3

func messagePrefix(roomID string) []byte { return []byte("room/" + roomID + "/msg/") }
func messageKey(roomID, id string) []byte {
	return []byte("room/" + roomID + "/msg/" + id)
}
func lastKey(roomID string) []byte { return []byte("room/" + roomID + "/last") }
func pinsKey(roomID string) []byte { return []byte("room/" + roomID + "/pins") }

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

var _ Store = (*BadgerStore)(nil)

// Open opens (or creates) the store described by cfg.
func Open(cfg config.StorageConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

func (s *BadgerStore) SaveMessage(_ context.Context, msg Message) (Message, error) {
	start := time.Now()
	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, fmt.Errorf("generate message id: %w", err)
	}
	msg.ID = id.String()
	msg.Timestamp = s.now().UTC()
	msg.Status = StatusSent

	data, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}

	err = s.update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.RoomID, msg.ID), data)
	})
	metrics.RecordStorageOperation("save_message", time.Since(start), err)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (s *BadgerStore) SetLastMessage(_ context.Context, roomID, messageID string) error {
	start := time.Now()
	err := s.update(func(txn *badger.Txn) error {
		return txn.Set(lastKey(roomID), []byte(messageID))
	})
	metrics.RecordStorageOperation("set_last_message", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}

func (s *BadgerStore) LastMessage(_ context.Context, roomID string) (Message, error) {
	var msg Message
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(lastKey(roomID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, messageKey(roomID, string(id)), &msg)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *BadgerStore) ListMessages(_ context.Context, roomID string, limit int) ([]Message, error) {
	start := time.Now()
	out := []Message{}
	err := s.view(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var msg Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, msg)
		}
		return nil
	})
	metrics.RecordStorageOperation("list_messages", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *BadgerStore) PinMessage(_ context.Context, roomID, messageID string) ([]string, error) {
	return s.mutatePins("pin_message", roomID, func(pins []string) []string {
		if slices.Contains(pins, messageID) {
			return pins
		}
		return append(pins, messageID)
	})
}

func (s *BadgerStore) UnpinMessage(_ context.Context, roomID, messageID string) ([]string, error) {
	return s.mutatePins("unpin_message", roomID, func(pins []string) []string {
		return slices.DeleteFunc(pins, func(id string) bool { return id == messageID })
	})
}

func (s *BadgerStore) mutatePins(op, roomID string, mutate func([]string) []string) ([]string, error) {
	start := time.Now()
	var result []string
	err := s.update(func(txn *badger.Txn) error {
		var pins []string
		if err := getJSON(txn, pinsKey(roomID), &pins); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		result = mutate(pins)
		if len(result) == 0 {
			return txn.Delete(pinsKey(roomID))
		}
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return txn.Set(pinsKey(roomID), data)
	})
	metrics.RecordStorageOperation(op, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result == nil {
		result = []string{}
	}
	return result, nil
}

func (s *BadgerStore) PinnedMessages(_ context.Context, roomID string) ([]string, error) {
	pins := []string{}
	err := s.view(func(txn *badger.Txn) error {
		return getJSON(txn, pinsKey(roomID), &pins)
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("pinned messages: %w", err)
	}
	return pins, nil
}

func (s *BadgerStore) UpdateStatus(_ context.Context, roomID, messageID string, status Status, readerID string, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update status: unknown status %q", status)
	}

	start := time.Now()
	err := s.update(func(txn *badger.Txn) error {
		key := messageKey(roomID, messageID)
		var msg Message
		if err := getJSON(txn, key, &msg); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		changed := false
		if status.rank() > msg.Status.rank() {
			msg.Status = status
			changed = true
		}
		if status == StatusRead && readerID != "" && !slices.Contains(msg.ReadBy, readerID) {
			msg.ReadBy = append(msg.ReadBy, readerID)
			if msg.ReadAt == nil {
				readAt := at.UTC()
				msg.ReadAt = &readAt
			}
			changed = true
		}
		if !changed {
			return nil
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	metrics.RecordStorageOperation("update_status", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// RunGC reclaims value log space until badger reports nothing left to
// collect. In-memory stores have no value log.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	for {
		err := s.db.RunValueLogGC(discardRatio)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return err
		}
	}
}

// DB returns the underlying database for components that keep their own
// key space in it, such as the audit trail.
func (s *BadgerStore) DB() *badger.DB { return s.db }

// Healthy reports whether the database is open.
func (s *BadgerStore) Healthy() bool {
	return !s.db.IsClosed()
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(fn)
}

// update retries on transaction conflicts; concurrent pin mutations on the
// same room are expected.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// badgerLogger forwards badger's warnings and errors to zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
