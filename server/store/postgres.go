package store

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	smimecheck "github.com/mseverin/go-smimecheck"
)

// PostgresStore implements ResultStore on PostgreSQL. Verdicts survive
// restarts; List returns them in first-insertion order, like the in-memory
// store.
type PostgresStore struct {
	db *sql.DB
}

const resultsSchema = `
CREATE TABLE IF NOT EXISTS verification_results (
    seq     BIGSERIAL PRIMARY KEY,
    mail_id TEXT NOT NULL UNIQUE,
    success BOOLEAN NOT NULL,
    code    TEXT NOT NULL,
    message TEXT NOT NULL,
    signer  TEXT NOT NULL DEFAULT ''
)`

// NewPostgresStore connects to the database at dsn and creates the results
// table when missing.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	if _, err := db.Exec(resultsSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &PostgresStore{db: db}, nil
}

// Save upserts the verdict. A replaced verdict keeps its original position
// in List: the conflict update leaves seq untouched.
func (s *PostgresStore) Save(result *smimecheck.VerificationResult) error {
	const query = `
        INSERT INTO verification_results (mail_id, success, code, message, signer)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (mail_id) DO UPDATE
        SET success = $2, code = $3, message = $4, signer = $5`
	_, err := s.db.Exec(query, result.MailID, result.Success, result.Code.String(), result.Message, result.Signer)
	return errors.Wrap(err, "save result")
}

func (s *PostgresStore) Get(mailID string) (*smimecheck.VerificationResult, error) {
	const query = `
        SELECT success, code, message, signer
        FROM verification_results
        WHERE mail_id = $1`
	result := smimecheck.VerificationResult{MailID: mailID}
	var code string
	err := s.db.QueryRow(query, mailID).Scan(&result.Success, &code, &result.Message, &result.Signer)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get result")
	}
	if err := result.Code.UnmarshalText([]byte(code)); err != nil {
		return nil, errors.Wrap(err, "decode stored code")
	}
	return &result, nil
}

func (s *PostgresStore) List() ([]*smimecheck.VerificationResult, error) {
	const query = `
        SELECT mail_id, success, code, message, signer
        FROM verification_results
        ORDER BY seq`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "list results")
	}
	defer rows.Close()

	var results []*smimecheck.VerificationResult
	for rows.Next() {
		var result smimecheck.VerificationResult
		var code string
		if err := rows.Scan(&result.MailID, &result.Success, &code, &result.Message, &result.Signer); err != nil {
			return nil, errors.Wrap(err, "scan result")
		}
		if err := result.Code.UnmarshalText([]byte(code)); err != nil {
			return nil, errors.Wrap(err, "decode stored code")
		}
		results = append(results, &result)
	}
	return results, errors.Wrap(rows.Err(), "list results")
}

func (s *PostgresStore) Delete(mailID string) error {
	const query = `DELETE FROM verification_results WHERE mail_id = $1`
	_, err := s.db.Exec(query, mailID)
	return errors.Wrap(err, "delete result")
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
