package store

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// BoltStore keeps JSON encoded values in one bbolt bucket.
type BoltStore[T any] struct {
	Db       *bbolt.DB
	DbFile   string
	FileMode os.FileMode
	Bucket   string
}

func NewBoltStore[T any](file string, mode os.FileMode, bucket string) (*BoltStore[T], error) {

	db, err := bbolt.Open(file, mode, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", file)
	}

	s := &BoltStore[T]{
		Db:       db,
		DbFile:   file,
		FileMode: mode,
		Bucket:   bucket,
	}

	if err := s.createBucket(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "creating bucket %s", bucket)
	}

	return s, nil
}

func (s *BoltStore[T]) createBucket() error {
	return s.Db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(s.Bucket))
		return err
	})
}

func (s *BoltStore[T]) Count() (int, error) {
	count := 0

	err := s.Db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(s.Bucket)).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})
	if err != nil {
		return -1, err
	}

	return count, nil
}

func (s *BoltStore[T]) Get(key string) (v T, err error) {

	err = s.Db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket([]byte(s.Bucket)).Get([]byte(key))
		if buf == nil {
			return errors.Wrap(ErrNotFound, key)
		}
		return json.Unmarshal(buf, &v)
	})

	return
}

func (s *BoltStore[T]) List() (vs []T, err error) {

	vs = []T{}
	err = s.Db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(s.Bucket)).ForEach(func(k, buf []byte) error {
			var v T
			if err := json.Unmarshal(buf, &v); err != nil {
				return errors.Wrapf(err, "decoding %s", k)
			}
			vs = append(vs, v)
			return nil
		})
	})

	return
}

func (s *BoltStore[T]) Put(key string, value T) error {

	buf, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}

	return s.Db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(s.Bucket)).Put([]byte(key), buf)
	})
}

func (s *BoltStore[T]) Close() error {
	return s.Db.Close()
}
