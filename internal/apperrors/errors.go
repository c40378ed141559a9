package apperrors

import "fmt"

// Error method implementation for HashConflictError
func (e *HashConflictError) Error() string {
	return fmt.Sprintf("schema hash conflict for plugin %q: stored %s, declared %s", e.PluginName, e.StoredHash, e.DeclaredHash)
}

// Error method implementation for StoreNotInitializedError
func (e *StoreNotInitializedError) Error() string {
	return fmt.Sprintf("%s: migration store is not initialized", e.Operation)
}

// Error method implementation for IdentifierError
func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid %s identifier: %q", e.Kind, e.Value)
}

// Error method implementation for PrivilegeError
func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("role %q can bypass row-level security; run as a non-privileged role", e.Role)
}

// Error method implementation for MigrationError
func (e *MigrationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("migration failed for plugin %q: %s: %v", e.PluginName, e.Message, e.Cause)
	}
	return fmt.Sprintf("migration failed for plugin %q: %s", e.PluginName, e.Message)
}

func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// NewHashConflictError creates a new HashConflictError
func NewHashConflictError(pluginName, storedHash, declaredHash string) *HashConflictError {
	return &HashConflictError{
		PluginName:   pluginName,
		StoredHash:   storedHash,
		DeclaredHash: declaredHash,
	}
}

// NewStoreNotInitializedError creates a new StoreNotInitializedError
func NewStoreNotInitializedError(operation string) *StoreNotInitializedError {
	return &StoreNotInitializedError{Operation: operation}
}

// NewIdentifierError creates a new IdentifierError
func NewIdentifierError(kind, value string) *IdentifierError {
	return &IdentifierError{Kind: kind, Value: value}
}

// NewPrivilegeError creates a new PrivilegeError
func NewPrivilegeError(role string) *PrivilegeError {
	return &PrivilegeError{Role: role}
}

// NewMigrationError creates a new MigrationError
func NewMigrationError(pluginName, message string, cause error) *MigrationError {
	return &MigrationError{
		PluginName: pluginName,
		Message:    message,
		Cause:      cause,
	}
}
