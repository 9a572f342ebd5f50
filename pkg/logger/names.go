package logger

const (
	Main     = "main"
	ConfNode = "confnode"
	Parser   = "parser"
	Resource = "resource"
	Lock     = "lock"
	Catalog  = "catalog"
	Env      = "env"
	Store    = "store"
	Exporter = "exporter"
	Loader   = "loader"

	LockMemory = "lock.memory"
	LockSQLite = "lock.sqlite"
	LockNATS   = "lock.nats"
)
