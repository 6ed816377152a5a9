// Package boltstore provides a BBolt-backed session store, for clients that need the
// session to survive a process restart without running a Redis server.
package boltstore

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authsession/session"
	"go.etcd.io/bbolt"
)

// Bucket is the bucket the record lives in.
const Bucket = "authsession"

// Store implements session.Store backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ session.Store = (*Store)(nil)

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// Open opens a BBolt database at the given path and returns a new Store.
func Open(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(_ context.Context, r *session.Record) error {
	data, err := session.Encode(r)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(Bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(session.Key), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *Store) Load(_ context.Context) (*session.Record, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(Bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(session.Key)); v != nil {
			// v is only valid for the life of the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", session.ErrBackendUnavailable, err)
	}
	if data == nil {
		return nil, false, nil
	}

	r, err := session.Decode(data)
	if err != nil {
		_ = s.delete()
		return nil, false, nil
	}
	return r, true, nil
}

func (s *Store) Clear(_ context.Context) error {
	if err := s.delete(); err != nil {
		return fmt.Errorf("%w: %v", session.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *Store) delete() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(Bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(session.Key))
	})
}
