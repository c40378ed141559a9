package apperrors

// HashConflictError reports two differing schema declarations registered
// under the same plugin name concurrently. It indicates a packaging or
// versioning bug upstream and is never resolved silently.
type HashConflictError struct {
	PluginName   string
	StoredHash   string
	DeclaredHash string
}

// StoreNotInitializedError reports an isolation-installer call made before
// the migration store exists.
type StoreNotInitializedError struct {
	Operation string
}

// IdentifierError reports a server/agent/table identifier that failed the
// allow-list check before DDL interpolation.
type IdentifierError struct {
	Kind  string
	Value string
}

// PrivilegeError reports a connection role that can bypass row-level
// security (superuser or BYPASSRLS).
type PrivilegeError struct {
	Role string
}

// MigrationError wraps a failure during migration application
type MigrationError struct {
	PluginName string
	Message    string
	Cause      error
}
