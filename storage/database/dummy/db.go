package dummydb

import (
	"sync"

	"github.com/tmalira/shule/core/principal"
)

type (
	// DB is an in-memory stand-in for the real database, used in tests.
	DB struct {
		principal *principalTable
	}

	principalTable struct {
		sync.RWMutex
		table map[string]*principal.Principal
	}
)

func Open() (*DB, error) {
	db := &DB{
		principal: &principalTable{table: make(map[string]*principal.Principal)},
	}
	return db, nil
}
