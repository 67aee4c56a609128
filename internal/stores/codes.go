package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alebarre/credauth/otp"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const (
	codeRecordVersionV1 = 1

	// expiredGrace keeps an expired record readable long enough for a late
	// consume to be told it expired rather than that nothing was requested.
	expiredGrace = 10 * time.Minute

	watchRetries = 4
	watchBackoff = 5 * time.Millisecond
)

// ErrCodeRedisUnavailable wraps Redis failures and exhausted WATCH retries.
var ErrCodeRedisUnavailable = errors.New("code redis unavailable")

// CodeStore keeps the authoritative code of each (address, purpose) pair in
// one Redis key. Replacing the key retires the previous code; a used code is
// deleted.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ otp.Store = (*CodeStore)(nil)

// NewCodeStore returns a store using keys under prefix ("otp" when empty).
func NewCodeStore(client redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &CodeStore{redis: client, prefix: prefix, now: time.Now}
}

func (s *CodeStore) key(address string, purpose otp.Purpose) string {
	return s.prefix + ":" + string(purpose) + ":" + address
}

func (s *CodeStore) ttl(rec *otp.Record) time.Duration {
	ttl := rec.ExpiresAt.Sub(s.now()) + expiredGrace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Replace overwrites the pair's key with rec.
func (s *CodeStore) Replace(ctx context.Context, rec *otp.Record) error {
	encoded, err := encodeCodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.Address, rec.Purpose), encoded, s.ttl(rec)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Latest returns the pair's unused record.
func (s *CodeStore) Latest(ctx context.Context, address string, purpose otp.Purpose) (*otp.Record, error) {
	data, err := s.redis.Get(ctx, s.key(address, purpose)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, otp.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	rec, err := decodeCodeRecord(data)
	if err != nil {
		return nil, err
	}
	rec.Address, rec.Purpose = address, purpose
	return rec, nil
}

// Update applies fn inside a WATCH/MULTI transaction on the pair's key,
// retrying when another writer touched the key first.
func (s *CodeStore) Update(ctx context.Context, address string, purpose otp.Purpose, fn func(*otp.Record) error) error {
	key := s.key(address, purpose)
	var fnErr error

	backoff := retry.WithMaxRetries(watchRetries, retry.NewConstant(watchBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fnErr = nil
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			rec, err := decodeCodeRecord(data)
			if err != nil {
				return err
			}
			rec.Address, rec.Purpose = address, purpose

			fnErr = fn(rec)

			var encoded []byte
			if !rec.Used {
				if encoded, err = encodeCodeRecord(rec); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if rec.Used {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.Set(ctx, key, encoded, s.ttl(rec))
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return fnErr
	case errors.Is(err, redis.Nil):
		return otp.ErrNotFound
	case errors.Is(err, errInvalidCodeRecord):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
}

// DeleteExpired scans the store's keys and removes records that expired
// before the cutoff. Redis key expiry removes the rest on its own.
func (s *CodeStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	iter := s.redis.Scan(ctx, 0, s.prefix+":*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
		rec, err := decodeCodeRecord(data)
		if err != nil || rec.ExpiresAt.Before(before) {
			n, err := s.redis.Del(ctx, key).Result()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
			}
			deleted += n
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return deleted, nil
}

var errInvalidCodeRecord = errors.New("invalid code record")

// Layout: version(1) attempts(2) created(8) expires(8) idLen(2) id hashLen(1) hash.
func encodeCodeRecord(rec *otp.Record) ([]byte, error) {
	if len(rec.ID) > 65535 {
		return nil, errors.New("code record id too long")
	}
	if len(rec.CodeHash) > 255 {
		return nil, errors.New("code hash too long")
	}
	if rec.Attempts < 0 || rec.Attempts > 65535 {
		return nil, errors.New("code attempts out of range")
	}

	var buf bytes.Buffer
	buf.WriteByte(codeRecordVersionV1)
	_ = binary.Write(&buf, binary.BigEndian, uint16(rec.Attempts))
	_ = binary.Write(&buf, binary.BigEndian, rec.CreatedAt.UnixNano())
	_ = binary.Write(&buf, binary.BigEndian, rec.ExpiresAt.UnixNano())
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(rec.ID)))
	buf.WriteString(rec.ID)
	buf.WriteByte(byte(len(rec.CodeHash)))
	buf.Write(rec.CodeHash)
	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*otp.Record, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != codeRecordVersionV1 {
		return nil, errInvalidCodeRecord
	}

	var (
		attempts         uint16
		created, expires int64
		idLen            uint16
	)
	for _, v := range []any{&attempts, &created, &expires, &idLen} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return nil, errInvalidCodeRecord
		}
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(r, id); err != nil {
		return nil, errInvalidCodeRecord
	}
	hashLen, err := r.ReadByte()
	if err != nil {
		return nil, errInvalidCodeRecord
	}
	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(r, hash); err != nil {
		return nil, errInvalidCodeRecord
	}

	return &otp.Record{
		ID:        string(id),
		CodeHash:  hash,
		Attempts:  int(attempts),
		CreatedAt: time.Unix(0, created).UTC(),
		ExpiresAt: time.Unix(0, expires).UTC(),
	}, nil
}
