package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Profile is what the client remembers between runs.
type Profile struct {
	ServerHost string
	ServerPort uint16
	Username   string // kept only when Remember is set
	Remember   bool
	Character  string
}

type ProfileRepo struct {
	db *DB
}

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// Load returns the saved profile, or a zero Profile on first run.
func (r *ProfileRepo) Load(ctx context.Context) (Profile, error) {
	var p Profile
	err := r.db.SQL.QueryRowContext(ctx,
		`SELECT server_host, server_port, username, remember, character
		 FROM profile WHERE id = 1`,
	).Scan(&p.ServerHost, &p.ServerPort, &p.Username, &p.Remember, &p.Character)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepo) Save(ctx context.Context, p Profile) error {
	if !p.Remember {
		p.Username = ""
	}
	_, err := r.db.SQL.ExecContext(ctx,
		`INSERT INTO profile (id, server_host, server_port, username, remember, character, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET
		     server_host = excluded.server_host,
		     server_port = excluded.server_port,
		     username    = excluded.username,
		     remember    = excluded.remember,
		     character   = excluded.character,
		     updated_at  = excluded.updated_at`,
		p.ServerHost, p.ServerPort, p.Username, p.Remember, p.Character,
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
