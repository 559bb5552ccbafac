// Package sqlite keeps rooms in a local SQLite file for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"signsense-quiz-service/internal/domain"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
  code TEXT PRIMARY KEY,
  state TEXT NOT NULL,
  question_index INTEGER NOT NULL DEFAULT 0,
  subject TEXT NOT NULL DEFAULT '',
  version INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS players (
  code TEXT NOT NULL REFERENCES rooms(code) ON DELETE CASCADE,
  name TEXT NOT NULL,
  answer TEXT,
  score INTEGER NOT NULL DEFAULT 0,
  answered INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (code, name)
);
`

type RoomStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*RoomStore, error) {
	dsn := "file:" + path + "?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; transactions then serialize instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &RoomStore{db: db}, nil
}

func (s *RoomStore) Close() error {
	return s.db.Close()
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (code, state, question_index, subject, version) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (code) DO NOTHING`,
			room.Code, string(room.State), room.QuestionIndex, room.Subject, room.Version)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: %s", domain.ErrRoomExists, room.Code)
		}
		for name, p := range room.Players {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO players (code, name, answer, score, answered) VALUES (?, ?, ?, ?, ?)`,
				room.Code, name, nullable(p.Answer), p.Score, p.Answered); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RoomStore) Get(ctx context.Context, code string) (domain.Room, error) {
	var room domain.Room
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		room = domain.NewRoom(code, "")
		var state string
		err := tx.QueryRowContext(ctx,
			`SELECT state, question_index, subject, version FROM rooms WHERE code = ?`, code).
			Scan(&state, &room.QuestionIndex, &room.Subject, &room.Version)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
		}
		if err != nil {
			return err
		}
		room.State = domain.RoomState(state)

		rows, err := tx.QueryContext(ctx, `SELECT name, answer, score, answered FROM players WHERE code = ?`, code)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				name   string
				answer sql.NullString
				p      domain.PlayerState
			)
			if err := rows.Scan(&name, &answer, &p.Score, &p.Answered); err != nil {
				return err
			}
			if answer.Valid {
				a := answer.String
				p.Answer = &a
			}
			room.Players[name] = p
		}
		return rows.Err()
	})
	return room, err
}

func (s *RoomStore) Patch(ctx context.Context, code string, patch domain.RoomPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current := domain.Room{Code: code}
		var state string
		err := tx.QueryRowContext(ctx, `SELECT state, question_index FROM rooms WHERE code = ?`, code).
			Scan(&state, &current.QuestionIndex)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
		}
		if err != nil {
			return err
		}
		current.State = domain.RoomState(state)
		if !patch.Allows(current.State, current.QuestionIndex) {
			return domain.PreconditionFailed(current)
		}

		if patch.Player != "" {
			if patch.EnsurePlayer {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO players (code, name) VALUES (?, ?) ON CONFLICT (code, name) DO NOTHING`,
					code, patch.Player); err != nil {
					return err
				}
			}
			// answered moves to index+1 only for answers, and only once per question.
			var answered any
			if patch.Answer != nil {
				answered = current.QuestionIndex + 1
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE players SET answer = COALESCE(?, answer), score = score + ?, answered = COALESCE(?, answered)
				 WHERE code = ? AND name = ? AND (? IS NULL OR answered <= ?)`,
				nullable(patch.Answer), patch.ScoreDelta, answered,
				code, patch.Player, answered, current.QuestionIndex)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return s.missedPlayer(ctx, tx, code, patch.Player)
			}
		}

		var newState any
		if patch.State != nil {
			newState = string(*patch.State)
		}
		advance := 0
		if patch.AdvanceQuestion {
			advance = 1
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE rooms SET state = COALESCE(?, state), question_index = question_index + ?, version = version + 1 WHERE code = ?`,
			newState, advance, code)
		return err
	})
}

// missedPlayer tells a missing player from one who already answered.
func (s *RoomStore) missedPlayer(ctx context.Context, tx *sql.Tx, code, name string) error {
	var answered int
	err := tx.QueryRowContext(ctx, `SELECT answered FROM players WHERE code = ? AND name = ?`, code, name).Scan(&answered)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, name)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s in room %s", domain.ErrAlreadyAnswered, name, code)
}

func (s *RoomStore) Delete(ctx context.Context, code string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE code = ?`, code); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE code = ?`, code)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, code)
		}
		return nil
	})
}

func (s *RoomStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return storeErr(err)
	}
	return storeErr(tx.Commit())
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrRoomExists, domain.ErrRoomNotFound, domain.ErrPlayerNotFound, domain.ErrInvalidTransition,
		domain.ErrAlreadyAnswered,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	var se *sqlitedrv.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_BUSY {
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdate, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
