// Package models holds the GORM models persisted by the store backends.
package models

// AllModels returns every model registered for schema auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&Contact{},
		&Message{},
	}
}
