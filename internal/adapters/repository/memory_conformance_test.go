package repository_test

import (
	"testing"

	"github.com/okian/lighthouse/internal/adapters/repository"
	"github.com/okian/lighthouse/internal/adapters/repository/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (repository.Store, func() repository.Store) {
		s := repository.NewMemoryStore()
		t.Cleanup(func() { _ = s.Close() })
		return s, nil
	})
}

func TestMemoryStoreShared(t *testing.T) {
	storetest.RunShared(t, func(t *testing.T) (repository.Store, repository.Store) {
		s := repository.NewMemoryStore()
		t.Cleanup(func() { _ = s.Close() })
		return s, s
	})
}
