package session

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Storage keys. Each key is written atomically by the backing store.
const (
	identityKey = "loramac:identity"
	sessionKey  = "loramac:session"
	devNonceKey = "loramac:devnonce"
)

// ErrNotFound is returned by Storage.Load for an unknown key.
var ErrNotFound = errors.New("session: key not found")

// Storage abstracts the non-volatile byte-slab store of the host. Writes
// must be atomic per key.
type Storage interface {
	Load(key string) ([]byte, error)
	Store(key string, value []byte) error
	Delete(key string) error
}

// Store persists the device identity, the session and the DevNonce
// high-water mark through a Storage backend using gob snapshots.
type Store struct {
	storage Storage

	// stride coalesces FCntUp persistence: the session is written
	// whenever FCntUp advanced by at least stride since the last write.
	// On load FCntUp is bumped by stride so the next transmitted value
	// is never below one that already went on air.
	stride         uint32
	lastFCntUpSync uint32
}

// NewStore wraps the given storage. A stride of 0 persists every uplink.
func NewStore(storage Storage, stride uint32) *Store {
	if stride == 0 {
		stride = 1
	}
	return &Store{storage: storage, stride: stride}
}

// StoreIdentity persists the device identity.
func (s *Store) StoreIdentity(id DeviceIdentity) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(id); err != nil {
		return errors.Wrap(err, "gob encode identity error")
	}
	return errors.Wrap(s.storage.Store(identityKey, buf.Bytes()), "store identity error")
}

// LoadIdentity loads the device identity, or ErrNotFound.
func (s *Store) LoadIdentity() (DeviceIdentity, error) {
	var id DeviceIdentity
	b, err := s.storage.Load(identityKey)
	if err != nil {
		return id, err
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&id); err != nil {
		return id, errors.Wrap(err, "gob decode identity error")
	}
	return id, nil
}

// Persist writes the session when forced or when FCntUp advanced by the
// configured stride.
func (s *Store) Persist(sess Session, force bool) error {
	if !force && sess.FCntUp < s.lastFCntUpSync+s.stride {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sess); err != nil {
		return errors.Wrap(err, "gob encode session error")
	}
	if err := s.storage.Store(sessionKey, buf.Bytes()); err != nil {
		return errors.Wrap(err, "store session error")
	}
	s.lastFCntUpSync = sess.FCntUp

	log.WithFields(log.Fields{
		"dev_addr": sess.DevAddr,
		"fcnt_up":  sess.FCntUp,
	}).Debug("session: persisted")
	return nil
}

// Load restores the persisted session. FCntUp is advanced by the stride to
// stay at or above any value that was transmitted before power-down.
func (s *Store) Load() (*Session, error) {
	b, err := s.storage.Load(sessionKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var sess Session
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&sess); err != nil {
		return nil, errors.Wrap(err, "gob decode session error")
	}
	// The write-coalescing baseline is what is on disk, not the bumped
	// in-memory value.
	s.lastFCntUpSync = sess.FCntUp
	sess.FCntUp += s.stride
	return &sess, nil
}

// Clear removes the persisted session.
func (s *Store) Clear() error {
	s.lastFCntUpSync = 0
	return errors.Wrap(s.storage.Delete(sessionKey), "delete session error")
}

// LoadDevNonce returns the persisted DevNonce high-water mark, or false
// when no join was ever attempted.
func (s *Store) LoadDevNonce() (uint16, bool, error) {
	b, err := s.storage.Load(devNonceKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(b) != 2 {
		return 0, false, errors.Errorf("devnonce: unexpected length %d", len(b))
	}
	return binary.LittleEndian.Uint16(b), true, nil
}

// StoreDevNonce persists the DevNonce high-water mark. A value below the
// stored one is rejected: the 1.0.4 nonce is strictly increasing.
func (s *Store) StoreDevNonce(nonce uint16) error {
	cur, ok, err := s.LoadDevNonce()
	if err != nil {
		return err
	}
	if ok && nonce < cur {
		return errors.Errorf("devnonce: %d would move below stored %d", nonce, cur)
	}

	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], nonce)
	return errors.Wrap(s.storage.Store(devNonceKey, b[:]), "store devnonce error")
}
