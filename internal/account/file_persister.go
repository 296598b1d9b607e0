// File: internal/account/file_persister.go
// quiznet server - account file persistence
//
// Persistent state (spec.md §6): a newline-separated list of
// "pseudo;hash" records. Writes are synchronous and serialized by the
// caller (Store.persistLocked holds the accounts lock for the duration).

package account

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// FilePersister writes/reads the account list to/from a flat text file.
type FilePersister struct {
	Path string
}

// NewFilePersister returns a Persister backed by path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

// Load reads every "pseudo;hash" line in the file. A missing file is not
// an error - it just yields an empty account list, mirroring the
// teacher's "create with defaults if missing" bootstrap behavior.
func (p *FilePersister) Load() ([]Account, error) {
	f, err := os.Open(p.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var accounts []Account
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ';')
		if idx < 0 {
			continue
		}
		accounts = append(accounts, Account{
			Pseudo:       line[:idx],
			PasswordHash: line[idx+1:],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Persist rewrites the whole file from the given account list (a
// write-behind sink, per spec.md §5's "Shared resources" paragraph).
func (p *FilePersister) Persist(accounts []Account) error {
	var sb strings.Builder
	for _, a := range accounts {
		fmt.Fprintf(&sb, "%s;%s\n", a.Pseudo, a.PasswordHash)
	}

	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p.Path)
}
