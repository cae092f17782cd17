package config

type StoreConfig interface {
	GetDatabaseDSN() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetDatabaseDSN returns the PostgreSQL connection string for the refresh
// token store. Empty means run with the in-memory store, which is fine for
// development and loses all sessions on restart.
func (Store) GetDatabaseDSN() string {
	return GetEnv("DATABASE_DSN", "")
}
