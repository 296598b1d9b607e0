// File: internal/account/store.go
// quiznet server - account store
//
// In-memory account list with a salted-hash credential check and a
// persist-on-write hook. The on-disk record layout is a newline-separated
// list of "pseudo;hash" records (spec.md §6 "Persistent state"); the hash
// itself is an implementation detail of Store and may change without
// affecting that layout.

package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"sync"

	"golang.org/x/crypto/argon2"
)

// MaxPseudoLength is the wire-level bound on a pseudo (spec.md §3).
const MaxPseudoLength = 31

// Result codes for register/login, used instead of bare booleans so the
// dispatcher can map them onto the statut taxonomy in spec.md §7 without
// re-deriving "why" from a plain bool.
type RegisterResult int

const (
	RegisterOK RegisterResult = iota
	RegisterConflict
	RegisterFull
	RegisterInvalid
)

type LoginResult int

const (
	LoginOK LoginResult = iota
	LoginInvalid
)

// Account is one registered player.
type Account struct {
	Pseudo       string
	PasswordHash string // hex(salt) ":" hex(argon2id(password, salt))
}

// Persister is the collaborator that durably writes the account list.
// The quiz content/credential *file format* is explicitly out of scope
// (spec.md §1); Store only needs something that can persist and reload
// an []Account, which the caller provides.
type Persister interface {
	Persist(accounts []Account) error
	Load() ([]Account, error)
}

// Store is an in-memory, capacity-bounded account list guarded by a
// single lock, matching the "accounts lock" in the locking discipline of
// spec.md §5.
type Store struct {
	mu        sync.Mutex
	byPseudo  map[string]*Account
	order     []string // insertion order, for stable iteration/persist
	capacity  int
	persister Persister
}

// NewStore creates an empty store bounded to capacity accounts; a
// capacity of 0 or less means no bound. A nil persister disables
// persistence (useful for tests).
func NewStore(capacity int, persister Persister) *Store {
	return &Store{
		byPseudo:  make(map[string]*Account),
		capacity:  capacity,
		persister: persister,
	}
}

// Load seeds the store from the persister, if any.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}
	accounts, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("account: load: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range accounts {
		a := accounts[i]
		s.byPseudo[a.Pseudo] = &a
		s.order = append(s.order, a.Pseudo)
	}
	log.Printf("account: loaded %d account(s)", len(accounts))
	return nil
}

// Register appends a new account with a freshly salted password hash.
func (s *Store) Register(pseudo, password string) RegisterResult {
	if pseudo == "" || len(pseudo) > MaxPseudoLength || password == "" {
		return RegisterInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byPseudo[pseudo]; exists {
		return RegisterConflict
	}
	if s.capacity > 0 && len(s.order) >= s.capacity {
		return RegisterFull
	}

	hash, err := hashPassword(password)
	if err != nil {
		log.Printf("account: hash error for %q: %v", pseudo, err)
		return RegisterInvalid
	}

	a := &Account{Pseudo: pseudo, PasswordHash: hash}
	s.byPseudo[pseudo] = a
	s.order = append(s.order, pseudo)

	s.persistLocked()
	return RegisterOK
}

// Login checks pseudo/password against the stored hash.
func (s *Store) Login(pseudo, password string) LoginResult {
	s.mu.Lock()
	a, exists := s.byPseudo[pseudo]
	s.mu.Unlock()

	if !exists {
		return LoginInvalid
	}
	if !verifyPassword(a.PasswordHash, password) {
		return LoginInvalid
	}
	return LoginOK
}

// Find returns a copy of the account for pseudo, if any.
func (s *Store) Find(pseudo string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.byPseudo[pseudo]
	if !exists {
		return Account{}, false
	}
	return *a, true
}

// persistLocked writes the current account list via the persister. Must
// be called with s.mu held. Failures are logged and swallowed, same as
// any other collaborator failure per spec.md §7 - a write that can't be
// durably recorded should not take down a live connection.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	accounts := make([]Account, 0, len(s.order))
	for _, pseudo := range s.order {
		accounts = append(accounts, *s.byPseudo[pseudo])
	}
	if err := s.persister.Persist(accounts); err != nil {
		log.Printf("account: persist error: %v", err)
	}
}

// hashPassword derives a memory-hard argon2id hash of password under a
// fresh random salt. Per spec.md §9 this replaces the reference
// implementation's non-cryptographic toy hash while keeping the on-disk
// "pseudo;hash" record layout - hash is just a wider hex string now.
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	sum := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sum), nil
}

// verifyPassword recomputes the hash from the stored salt and compares
// in constant time.
func verifyPassword(stored, password string) bool {
	saltHex, sumHex, ok := splitHash(stored)
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(sumHex)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func splitHash(stored string) (salt, sum string, ok bool) {
	for i := 0; i < len(stored); i++ {
		if stored[i] == ':' {
			return stored[:i], stored[i+1:], true
		}
	}
	return "", "", false
}
