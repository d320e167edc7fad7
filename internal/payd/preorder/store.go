// Package preorder persists SEPA preorders in a local bbolt file.
//
// A preorder is a promise of payment: the frontend records the donor's
// details and amount, hands the donor a reference to put on their bank
// transfer, and a back-office job commits the preorder once the transfer
// shows up on the account statement. That flow spans days, so preorders
// outlive the process and go to disk.
//
// Storage
// =======
//
// One bbolt bucket maps reference to record. Records are JSON, with the
// dictionary stored as an ordered name/value array rather than a JSON
// object: clients get their fields echoed back in the order they sent
// them, and a round trip through an unordered map would destroy that.
// bbolt gives the one guarantee that matters here, a fully serialized
// write transaction, so reference minting can check-and-insert without
// extra locking.
//
// References
// ==========
//
// References are printed on bank statements and read back by humans, so
// they use Crockford's base32 alphabet (no I, L, O, U) in the form
// XXXXX-XXXXX. Ten random characters carry 50 bits, which makes guessing
// a live reference hopeless; collisions are handled anyway by retrying
// the mint inside the insert transaction.
package preorder

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"payd.lopezb.com/internal/payd/dict"
)

const (
	bucketName   = "preorders"
	timeFormat   = "20060102T150405"
	refAlphabet  = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	mintAttempts = 32
)

var ErrNotFound = errors.New("preorder: no such reference")

// Store is a bbolt-backed preorder store. All methods are safe for
// concurrent use; bbolt serializes the write transactions.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the preorder database at path. The
// Timeout option keeps a second process from hanging forever on the file
// lock.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("preorder: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preorder: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores the capitalized fields of d as a new preorder and returns
// the minted reference. The stored record additionally carries the
// reference itself (Sepa-Ref) and the creation time, so a later lookup
// reproduces the full picture.
func (s *Store) Create(d *dict.Dict) (string, error) {
	fields := d.CloneCapitalized()

	var ref string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for i := 0; i < mintAttempts; i++ {
			r, err := mintRef()
			if err != nil {
				return err
			}
			if b.Get([]byte(r)) != nil {
				continue
			}
			fields.Set("Sepa-Ref", r)
			fields.Set("Creation-Time", time.Now().Format(timeFormat))
			raw, err := encodeRecord(fields)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r), raw); err != nil {
				return err
			}
			ref = r
			return nil
		}
		return errors.New("preorder: could not mint a fresh reference")
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Commit marks a preorder as paid, overwriting Amount and Currency with
// the values actually received and stamping Paid-Date. Committing twice
// simply restamps; bank statements are processed idempotently. Returns
// the updated record.
func (s *Store) Commit(ref, amount, currency string) (*dict.Dict, error) {
	var out *dict.Dict
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		raw := b.Get([]byte(ref))
		if raw == nil {
			return ErrNotFound
		}
		fields, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		fields.Set("Amount", amount)
		fields.Set("Currency", currency)
		fields.Set("Paid-Date", time.Now().Format(timeFormat))
		updated, err := encodeRecord(fields)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(ref), updated); err != nil {
			return err
		}
		out = fields
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup returns the stored record for ref.
func (s *Store) Lookup(ref string) (*dict.Dict, error) {
	var out *dict.Dict
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketName)).Get([]byte(ref))
		if raw == nil {
			return ErrNotFound
		}
		fields, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		out = fields
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored preorders.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// mintRef draws ten random base32 characters as XXXXX-XXXXX. A byte
// modulo 32 is unbiased because 256 divides evenly by 32.
func mintRef() (string, error) {
	var raw [10]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("preorder: mint reference: %w", err)
	}
	b := make([]byte, 11)
	for i, c := range raw {
		p := i
		if i >= 5 {
			p++
		}
		b[p] = refAlphabet[c%32]
	}
	b[5] = '-'
	return string(b), nil
}

// recordField is one stored name/value pair. The array form preserves
// dictionary order across the JSON round trip.
type recordField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func encodeRecord(d *dict.Dict) ([]byte, error) {
	items := d.Items()
	fields := make([]recordField, len(items))
	for i, it := range items {
		fields[i] = recordField{Name: it.Name, Value: it.Value}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("preorder: encode record: %w", err)
	}
	return raw, nil
}

func decodeRecord(raw []byte) (*dict.Dict, error) {
	var fields []recordField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("preorder: decode record: %w", err)
	}
	d := dict.New()
	for _, f := range fields {
		d.Set(f.Name, f.Value)
	}
	return d, nil
}
