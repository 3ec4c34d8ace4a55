package store

import "fmt"

func NewStore(kind, dir, sqlitePath string) (Store, error) {
	switch kind {
	case "", "file":
		return NewFileStore(dir), nil
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
