package account

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	s := NewStore(0, nil)

	assert.Equal(t, RegisterOK, s.Register("alice", "hunter2"))
	assert.Equal(t, LoginOK, s.Login("alice", "hunter2"))
	assert.Equal(t, LoginInvalid, s.Login("alice", "wrong"))
	assert.Equal(t, LoginInvalid, s.Login("nobody", "hunter2"))
}

func TestRegisterConflict(t *testing.T) {
	s := NewStore(0, nil)
	require.Equal(t, RegisterOK, s.Register("alice", "hunter2"))
	assert.Equal(t, RegisterConflict, s.Register("alice", "different"))
}

func TestRegisterInvalid(t *testing.T) {
	s := NewStore(0, nil)
	assert.Equal(t, RegisterInvalid, s.Register("", "x"))
	assert.Equal(t, RegisterInvalid, s.Register("alice", ""))

	tooLong := make([]byte, MaxPseudoLength+1)
	for i := range tooLong {
		tooLong[i] = 'a'
	}
	assert.Equal(t, RegisterInvalid, s.Register(string(tooLong), "x"))
}

func TestRegisterFullCapacity(t *testing.T) {
	s := NewStore(1, nil)
	require.Equal(t, RegisterOK, s.Register("alice", "pw"))
	assert.Equal(t, RegisterFull, s.Register("bob", "pw"))
}

func TestPasswordHashesAreSaltedDifferently(t *testing.T) {
	s1 := NewStore(0, nil)
	s2 := NewStore(0, nil)
	require.Equal(t, RegisterOK, s1.Register("alice", "samepassword"))
	require.Equal(t, RegisterOK, s2.Register("alice", "samepassword"))

	a1, ok := s1.Find("alice")
	require.True(t, ok)
	a2, ok := s2.Find("alice")
	require.True(t, ok)

	assert.NotEqual(t, a1.PasswordHash, a2.PasswordHash, "independent salts must produce different hashes for the same password")
}

func TestFilePersisterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.txt")
	persister := NewFilePersister(path)

	s := NewStore(0, persister)
	require.Equal(t, RegisterOK, s.Register("alice", "hunter2"))
	require.Equal(t, RegisterOK, s.Register("bob", "correcthorse"))

	s2 := NewStore(0, NewFilePersister(path))
	require.NoError(t, s2.Load())

	assert.Equal(t, LoginOK, s2.Login("alice", "hunter2"))
	assert.Equal(t, LoginOK, s2.Login("bob", "correcthorse"))
	assert.Equal(t, LoginInvalid, s2.Login("alice", "wrongpassword"))
}

func TestFilePersisterLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	persister := NewFilePersister(filepath.Join(dir, "nope.txt"))
	accounts, err := persister.Load()
	require.NoError(t, err)
	assert.Nil(t, accounts)
}

func TestFilePersisterSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice;abc:def\nnosemicolonhere\nbob;xyz:123\n"), 0o600))

	accounts, err := NewFilePersister(path).Load()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Pseudo)
	assert.Equal(t, "bob", accounts[1].Pseudo)
}
