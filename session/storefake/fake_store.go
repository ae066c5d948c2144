package storefake

import (
	"sync"

	apperrors "github.com/seatwise/dashboard/internal/errors"
	"github.com/seatwise/dashboard/session"
)

var _ session.Store = (*FakeStore)(nil)

type FakeStore struct {
	lock       sync.RWMutex
	credential *session.Credential

	SaveCount  int
	ClearCount int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) Load() (*session.Credential, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.credential == nil {
		return nil, apperrors.ErrNoCredential
	}
	copied := *fs.credential
	return &copied, nil
}

func (fs *FakeStore) Save(credential *session.Credential) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	copied := *credential
	fs.credential = &copied
	fs.SaveCount++
	return nil
}

func (fs *FakeStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.credential = nil
	fs.ClearCount++
	return nil
}
