package models

// AllModels is the migration set, ordered so referenced tables come first.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Team{},
		&TeamMember{},
		&Project{},
		&Task{},
		&Message{},
	}
}
