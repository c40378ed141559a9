package apperrors

// Error message constants
const (
	ErrMsgSchemaConflict = "Declared schema cannot be applied additively"
	ErrMsgLockTimeout    = "Timed out waiting for the migration advisory lock"
	ErrMsgUnknownServer  = "Server is not registered"
	ErrMsgEmptyEntity    = "Entity identifier must not be empty"
)
