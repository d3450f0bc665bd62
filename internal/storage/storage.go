package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shoplist/internal/crypto"

	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"
)

var (
	metaBucket      = []byte("meta")
	documentsBucket = []byte("documents")

	keySchemaVersion = []byte("schema_version")
	keySalt          = []byte("salt")
	keyCheck         = []byte("key_check")
)

const schemaVersion = "1"

var keyCheckPlaintext = []byte("shoplist")

var (
	ErrNotFound = errors.New("document not found")
	ErrLocked   = errors.New("store is encrypted and locked")
)

// Record is a stored document plus the metadata the server hands out.
type Record struct {
	Path      string          `json:"path"`
	Revision  string          `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

type Store struct {
	db     *bolt.DB
	dbPath string
	mu     sync.RWMutex
	sealer *crypto.Sealer

	// entropy is only used inside bolt write transactions, which bolt
	// already serializes.
	entropy *ulid.MonotonicEntropy
}

func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:      db,
		dbPath:  dbPath,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{metaBucket, documentsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket(metaBucket)
		if meta.Get(keySchemaVersion) == nil {
			if err := meta.Put(keySchemaVersion, []byte(schemaVersion)); err != nil {
				return err
			}
		}

		return nil
	})
}

// IsEncrypted reports whether documents in this database are sealed with a
// passphrase-derived key.
func (s *Store) IsEncrypted() bool {
	var encrypted bool
	s.db.View(func(tx *bolt.Tx) error {
		encrypted = tx.Bucket(metaBucket).Get(keySalt) != nil
		return nil
	})
	return encrypted
}

// Unlock derives the document key from passphrase. On a database that has
// never been encrypted it sets up encryption, which only works while the
// database holds no documents.
func (s *Store) Unlock(passphrase string) error {
	var salt, check []byte
	var empty bool
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		salt = copyBytes(meta.Get(keySalt))
		check = copyBytes(meta.Get(keyCheck))
		empty = tx.Bucket(documentsBucket).Stats().KeyN == 0
		return nil
	})
	if err != nil {
		return err
	}

	if salt == nil {
		if !empty {
			return fmt.Errorf("cannot enable encryption on a database that already has documents")
		}
		return s.initEncryption(passphrase)
	}

	sealer, err := crypto.NewSealer(passphrase, salt)
	if err != nil {
		return err
	}
	plaintext, err := sealer.Open(string(keyCheck), check)
	if err != nil {
		return err
	}
	if string(plaintext) != string(keyCheckPlaintext) {
		return crypto.ErrDecryptionFailed
	}

	s.mu.Lock()
	s.sealer = sealer
	s.mu.Unlock()
	return nil
}

func (s *Store) initEncryption(passphrase string) error {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	sealer, err := crypto.NewSealer(passphrase, salt)
	if err != nil {
		return err
	}
	check, err := sealer.Seal(string(keyCheck), keyCheckPlaintext)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if err := meta.Put(keySalt, salt); err != nil {
			return err
		}
		return meta.Put(keyCheck, check)
	})
	if err != nil {
		return fmt.Errorf("failed to save encryption metadata: %w", err)
	}

	s.mu.Lock()
	s.sealer = sealer
	s.mu.Unlock()
	return nil
}

// documentSealer returns nil for a plaintext database.
func (s *Store) documentSealer() (*crypto.Sealer, error) {
	s.mu.RLock()
	sealer := s.sealer
	s.mu.RUnlock()

	if sealer == nil && s.IsEncrypted() {
		return nil, ErrLocked
	}
	return sealer, nil
}

func (s *Store) Get(path string) (*Record, error) {
	sealer, err := s.documentSealer()
	if err != nil {
		return nil, err
	}

	var blob []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		blob = copyBytes(tx.Bucket(documentsBucket).Get([]byte(path)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, ErrNotFound
	}

	if sealer != nil {
		blob, err = sealer.Open(path, blob)
		if err != nil {
			return nil, err
		}
	}

	var record Record
	if err := json.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", path, err)
	}
	return &record, nil
}

// Put replaces the document at path. The revision is stamped inside the
// write transaction, so revisions increase in commit order.
func (s *Store) Put(path string, data json.RawMessage) (*Record, error) {
	sealer, err := s.documentSealer()
	if err != nil {
		return nil, err
	}

	var record *Record
	err = s.db.Update(func(tx *bolt.Tx) error {
		now := time.Now().UTC()
		rev, err := ulid.New(ulid.Timestamp(now), s.entropy)
		if err != nil {
			return fmt.Errorf("failed to stamp revision: %w", err)
		}
		rec := &Record{
			Path:      path,
			Revision:  rev.String(),
			UpdatedAt: now,
			Data:      data,
		}

		blob, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to serialize document: %w", err)
		}
		if sealer != nil {
			if blob, err = sealer.Seal(path, blob); err != nil {
				return err
			}
		}

		if err := tx.Bucket(documentsBucket).Put([]byte(path), blob); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
