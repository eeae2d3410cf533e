package db

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(
		&Library{},
		&User{},
		&Book{},
		&Loan{},
		&Session{},
		&Notification{},
	); err != nil {
		return err
	}

	return createIndexes(db)
}

func createIndexes(db *DB) error {
	indexes := []string{
		// Candidate scan of the overdue job
		`CREATE INDEX IF NOT EXISTS idx_loans_active_due ON loans(due_date) WHERE status = 'active' AND returned_at IS NULL`,

		// Delete guard and duplicate-request check
		`CREATE INDEX IF NOT EXISTS idx_loans_book_status ON loans(book_id, status)`,
	}

	if db.IsPostgres() {
		indexes = append(indexes,
			`CREATE INDEX IF NOT EXISTS idx_books_title_author_lower ON books (library_id, lower(title), lower(author))`,
		)
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
