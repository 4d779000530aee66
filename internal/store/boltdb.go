package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDLQ    = []byte("dlq")    // notificações que falharam
	bucketModels = []byte("models") // histórico de retreinos
)

// State is the small bbolt database next to the event log.
type State struct{ db *bolt.DB }

func OpenState(path string) (*State, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDLQ, bucketModels} {
			if _, e := tx.CreateBucketIfNotExists(b); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &State{db: db}, nil
}

func (s *State) Close() error { return s.db.Close() }

type DLQItem struct {
	When  time.Time `json:"when"`
	Kind  string    `json:"kind"`
	Text  string    `json:"text"`
	Error string    `json:"error"`
}

type ModelInfo struct {
	TrainedAt time.Time `json:"trainedAt"`
	Samples   int       `json:"samples"`
	Threshold float64   `json:"threshold"`
	ScoreMean float64   `json:"scoreMean"`
}

func (s *State) PutDLQ(item DLQItem) error { return s.put(bucketDLQ, item) }

func (s *State) PutModel(info ModelInfo) error { return s.put(bucketModels, info) }

func (s *State) RecentDLQ(limit int) ([]DLQItem, error) {
	out := []DLQItem{}
	err := s.each(bucketDLQ, limit, func(v []byte) bool {
		var it DLQItem
		if json.Unmarshal(v, &it) != nil {
			return false
		}
		out = append(out, it)
		return true
	})
	return out, err
}

func (s *State) RecentModels(limit int) ([]ModelInfo, error) {
	out := []ModelInfo{}
	err := s.each(bucketModels, limit, func(v []byte) bool {
		var m ModelInfo
		if json.Unmarshal(v, &m) != nil {
			return false
		}
		out = append(out, m)
		return true
	})
	return out, err
}

func (s *State) put(bucket []byte, v any) error {
	j, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, j)
	})
}

// each walks newest first; fn reports whether the value was kept.
func (s *State) each(bucket []byte, limit int, fn func(v []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		n := 0
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if fn(v) {
				n++
			}
			if limit > 0 && n >= limit {
				break
			}
		}
		return nil
	})
}
