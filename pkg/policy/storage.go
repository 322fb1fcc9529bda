// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// Storage defines the interface for rule persistence
type Storage interface {
	// SaveRules saves rules to persistent storage, replacing rules with the same index
	SaveRules(rules []Rule) error

	// DeleteRule removes a rule from persistent storage
	DeleteRule(index int) error

	// ReplaceRules swaps the stored rule set for rules in one transaction
	ReplaceRules(rules []Rule) error

	// LoadRules loads all rules from persistent storage in index order
	LoadRules() ([]Rule, error)

	// Close closes the storage connection
	Close() error
}

// SQLiteStorage implements Storage using SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}

	// Initialize database schema
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Infof("Rule storage initialized: %s", dbPath)
	return storage, nil
}

// initSchema creates the rules table if it doesn't exist
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		rule_index INTEGER PRIMARY KEY,
		network TEXT NOT NULL,
		label INTEGER NOT NULL CHECK (label IN (0, 1)),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_network ON rules(network);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveRules saves rules to the database in a single transaction
func (s *SQLiteStorage) SaveRules(rules []Rule) error {
	return s.writeRules(rules, false)
}

// ReplaceRules deletes every stored rule and saves rules in the same
// transaction. On failure the previous rule set is kept.
func (s *SQLiteStorage) ReplaceRules(rules []Rule) error {
	return s.writeRules(rules, true)
}

func (s *SQLiteStorage) writeRules(rules []Rule, replace bool) error {
	query := `
	INSERT INTO rules (rule_index, network, label)
	VALUES (?, ?, ?)
	ON CONFLICT(rule_index) DO UPDATE SET
		network = excluded.network,
		label = excluded.label,
		updated_at = CURRENT_TIMESTAMP
	`

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if replace {
		if _, err := tx.Exec(`DELETE FROM rules`); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to clear rules: %w", err)
		}
	}

	stmt, err := tx.Prepare(query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range rules {
		if _, err := stmt.Exec(r.Index, r.Prefix.String(), uint8(r.Label)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save rule %d: %w", r.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}

	log.Debugf("Saved %d rules to storage", len(rules))
	return nil
}

// DeleteRule removes a rule from the database
func (s *SQLiteStorage) DeleteRule(index int) error {
	query := `DELETE FROM rules WHERE rule_index = ?`

	result, err := s.db.Exec(query, index)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("rule not found: index=%d", index)
	}

	log.Debugf("Rule deleted from storage: index=%d", index)
	return nil
}

// LoadRules loads all rules from the database
func (s *SQLiteStorage) LoadRules() ([]Rule, error) {
	query := `
	SELECT rule_index, network, label
	FROM rules
	ORDER BY rule_index ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var (
			index   int
			network string
			label   uint8
		)
		if err := rows.Scan(&index, &network, &label); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		pfx, err := ParseCIDR(network)
		if err != nil {
			return nil, fmt.Errorf("stored rule %d: %w", index, err)
		}
		rules = append(rules, Rule{Index: index, Prefix: pfx, Label: Label(label)})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	log.Infof("Loaded %d rules from storage", len(rules))
	return rules, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetRuleCount returns the total number of rules in storage
func (s *SQLiteStorage) GetRuleCount() (int, error) {
	query := `SELECT COUNT(*) FROM rules`

	var count int
	err := s.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get rule count: %w", err)
	}

	return count, nil
}

// ClearAll removes all rules from storage (useful for testing)
func (s *SQLiteStorage) ClearAll() error {
	query := `DELETE FROM rules`

	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	log.Info("All rules cleared from storage")
	return nil
}

// LoadTable rebuilds a rule table from persistent storage
func LoadTable(s Storage) (*Table, error) {
	rules, err := s.LoadRules()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from storage: %w", err)
	}

	t := NewTable(len(rules))
	for _, r := range rules {
		if err := t.Ingest(r); err != nil {
			return nil, fmt.Errorf("failed to restore rule %d: %w", r.Index, err)
		}
	}
	return t, nil
}
