// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key layout, disjoint from the room/ keys of the message store:
//
//	audit/ts/<unix nanos, 20 digits>/<id>  event JSON
//	audit/id/<id>                          the ts key above
var (
	timePrefix = []byte("audit/ts/")
	idPrefix   = []byte("audit/id/")
)

func timeKey(event *Event) []byte {
	return fmt.Appendf(nil, "audit/ts/%020d/%s", event.Timestamp.UnixNano(), event.ID)
}

func idKey(id string) []byte { return append(bytes.Clone(idPrefix), id...) }

// BadgerStore implements Store on a shared BadgerDB. Closing the database is
// the owner's job.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore stores events in db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Save(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	tk := timeKey(event)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(tk, data); err != nil {
			return err
		}
		return txn.Set(idKey(event.ID), tk)
	})
}

func (s *BadgerStore) Get(_ context.Context, id string) (*Event, error) {
	var event Event
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(id))
		if err != nil {
			return err
		}
		tk, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(tk)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit event %s: %w", id, err)
	}
	return &event, nil
}

func (s *BadgerStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	results := []Event{}
	err := s.scan(true, func(event *Event) bool {
		if filter.Matches(event) {
			results = append(results, *event)
		}
		return filter.Limit <= 0 || len(results) < filter.Limit
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return results, nil
}

func (s *BadgerStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	var count int64
	err := s.scan(false, func(event *Event) bool {
		if filter.Matches(event) {
			count++
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}

// Delete walks the time index from the oldest key and stops at the first
// event not older than olderThan.
func (s *BadgerStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	cutoff := fmt.Appendf(nil, "audit/ts/%020d", olderThan.UnixNano())

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = timePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(timePrefix); it.ValidForPrefix(timePrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if bytes.Compare(key, cutoff) >= 0 {
				break
			}
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan audit events: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete audit event: %w", err)
		}
		id := key[bytes.LastIndexByte(key, '/')+1:]
		if err := wb.Delete(idKey(string(id))); err != nil {
			return 0, fmt.Errorf("delete audit index: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush audit deletes: %w", err)
	}
	return int64(len(stale)), nil
}

// scan decodes events in time order, newest first when reverse is set,
// until fn returns false.
func (s *BadgerStore) scan(reverse bool, fn func(*Event) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		opts.Prefix = timePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := timePrefix
		if reverse {
			seek = append(bytes.Clone(timePrefix), 0xFF)
		}
		for it.Seek(seek); it.ValidForPrefix(timePrefix); it.Next() {
			var event Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if !fn(&event) {
				return nil
			}
		}
		return nil
	})
}
