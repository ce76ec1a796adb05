// Package badger is a document-style port.RoomStore on top of badger.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Wyydra/duet/internal/adapter/driven/store/feed"
	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/dgraph-io/badger/v2"
)

const maxTxnAttempts = 64

type RoomStore struct {
	db   *badger.DB
	feed *feed.Feed
	now  func() time.Time
}

// Open opens the store in dir. An empty dir keeps everything in memory.
func Open(dir string) (*RoomStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(newBadgerLogger())
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &RoomStore{
		db:   db,
		feed: feed.New(),
		now:  time.Now,
	}, nil
}

func (s *RoomStore) Close() error {
	return s.db.Close()
}

func (s *RoomStore) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	var id domain.RoomID
	err := s.update(func(txn *badger.Txn) error {
		for {
			id = domain.NewRoomID()
			_, err := txn.Get(roomKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				break
			}
			if err != nil {
				return err
			}
		}
		return putRoom(txn, roomRecord{
			ID:        id.String(),
			CreatedAt: s.now(),
			Revision:  1,
		})
	})
	if err != nil {
		return "", storeErr(err)
	}
	return id, nil
}

func (s *RoomStore) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var rec roomRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRoom(txn, id)
		return err
	})
	if err != nil {
		return domain.Room{}, storeErr(err)
	}
	return rec.toDomain(), nil
}

func (s *RoomStore) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(roomsPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if !isRoomKey(item.Key()) {
				continue
			}
			var rec roomRecord
			if err := item.Value(func(val []byte) error { return decode(val, &rec) }); err != nil {
				return err
			}
			rooms = append(rooms, rec.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *RoomStore) SetOffer(ctx context.Context, id domain.RoomID, offer domain.SessionDescription) error {
	return s.setDescription(id, "offer", func(rec *roomRecord) **domain.SessionDescription { return &rec.Offer }, offer)
}

func (s *RoomStore) SetAnswer(ctx context.Context, id domain.RoomID, answer domain.SessionDescription) error {
	return s.setDescription(id, "answer", func(rec *roomRecord) **domain.SessionDescription { return &rec.Answer }, answer)
}

// setDescription is a compare-and-set: a concurrent writer makes the commit
// fail with ErrConflict, and the retry then sees the winner's value.
func (s *RoomStore) setDescription(id domain.RoomID, name string, field func(*roomRecord) **domain.SessionDescription, desc domain.SessionDescription) error {
	err := s.update(func(txn *badger.Txn) error {
		rec, err := getRoom(txn, id)
		if err != nil {
			return err
		}
		slot := field(&rec)
		if *slot != nil {
			return fmt.Errorf("room %s %s: %w", id, name, domain.ErrAlreadySet)
		}
		d := desc
		*slot = &d
		rec.Revision++
		return putRoom(txn, rec)
	})
	if err != nil {
		return storeErr(err)
	}
	s.feed.Publish(feed.RoomTopic(id))
	return nil
}

func (s *RoomStore) AppendCandidate(ctx context.Context, id domain.RoomID, side domain.Side, c domain.Candidate) (domain.CandidateEvent, error) {
	var seq uint64
	err := s.update(func(txn *badger.Txn) error {
		if _, err := getRoom(txn, id); err != nil {
			return err
		}

		next, err := getCounter(txn, counterKey(id, side))
		if err != nil {
			return err
		}
		seq = next + 1

		val, err := encode(candidateRecord{Seq: seq, Candidate: c})
		if err != nil {
			return err
		}
		if err := txn.Set(candidateKey(id, side, seq), val); err != nil {
			return err
		}
		return putCounter(txn, counterKey(id, side), seq)
	})
	if err != nil {
		return domain.CandidateEvent{}, storeErr(err)
	}

	s.feed.Publish(feed.CandidatesTopic(id, side))
	return domain.CandidateEvent{
		RoomID:    id,
		Side:      side,
		Seq:       seq,
		Candidate: c,
	}, nil
}

func (s *RoomStore) CandidatesAfter(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) ([]domain.CandidateEvent, error) {
	var events []domain.CandidateEvent
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := candidatesPrefix(id, side)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(candidateKey(id, side, after+1)); it.ValidForPrefix(prefix); it.Next() {
			var rec candidateRecord
			if err := it.Item().Value(func(val []byte) error { return decode(val, &rec) }); err != nil {
				return err
			}
			events = append(events, domain.CandidateEvent{
				RoomID:    id,
				Side:      side,
				Seq:       rec.Seq,
				Candidate: rec.Candidate,
			})
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return events, nil
}

func (s *RoomStore) WatchAnswer(ctx context.Context, id domain.RoomID) (<-chan domain.Room, error) {
	return s.feed.WatchRoom(ctx, s, id)
}

func (s *RoomStore) WatchCandidates(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) (<-chan domain.CandidateEvent, error) {
	return s.feed.WatchCandidates(ctx, s, id, side, after)
}

func (s *RoomStore) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	existed := false
	err := s.update(func(txn *badger.Txn) error {
		keys := [][]byte{}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = roomChildrenPrefix(id)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		_, err := txn.Get(roomKey(id))
		switch {
		case err == nil:
			existed = true
			keys = append(keys, roomKey(id))
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	if existed {
		s.feed.Publish(feed.RoomTopic(id))
	}
	return nil
}

func (s *RoomStore) update(fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return errors.New("too many transaction conflicts")
}

func getRoom(txn *badger.Txn, id domain.RoomID) (roomRecord, error) {
	var rec roomRecord
	item, err := txn.Get(roomKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return decode(val, &rec)
	})
	return rec, err
}

func putRoom(txn *badger.Txn, rec roomRecord) error {
	val, err := encode(rec)
	if err != nil {
		return err
	}
	return txn.Set(roomKey(domain.RoomID(rec.ID)), val)
}

func getCounter(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(val []byte) error {
		return decode(val, &n)
	})
	return n, err
}

func putCounter(txn *badger.Txn, key []byte, n uint64) error {
	val, err := encode(n)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}

// storeErr keeps domain errors and reports everything else as the store
// being unavailable.
func storeErr(err error) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadySet) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
