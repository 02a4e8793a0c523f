// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package credstore

import (
	"database/sql"
	"encoding/hex"

	"github.com/nqminds/EDGESec/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS store (
	key TEXT PRIMARY KEY,
	value TEXT,
	id TEXT,
	iv TEXT
);
CREATE TABLE IF NOT EXISTS secrets (
	id TEXT PRIMARY KEY,
	value TEXT,
	salt TEXT,
	iv TEXT
);
`

// Context is a per-process credential-store context parameterized by a
// master secret supplied at start time (spec §4.4). It owns the `store`
// and `secrets` SQLite tables; tickets are issued by TicketManager.
type Context struct {
	masterSecret []byte
	db           *sql.DB
}

// New opens (creating if needed) the store/secrets tables in db and returns
// a Context bound to masterSecret. masterSecret is never itself persisted.
func New(db *sql.DB, masterSecret []byte) (*Context, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "credstore: create schema")
	}
	return &Context{masterSecret: masterSecret, db: db}, nil
}

// dataKey derives and persists (or reuses) the per-id data key, wrapped
// under the master secret, returning the unwrapped data key for callers to
// seal/open values with.
func (c *Context) dataKey(id string) ([]byte, error) {
	row := c.db.QueryRow(`SELECT value, salt, iv FROM secrets WHERE id = ?`, id)
	var valueHex, saltHex, ivHex string
	err := row.Scan(&valueHex, &saltHex, &ivHex)

	switch {
	case err == sql.ErrNoRows:
		salt, err := randomSalt()
		if err != nil {
			return nil, err
		}
		dataKey, err := deriveKey(c.masterSecret, salt, "edgesec/credstore/data-key")
		if err != nil {
			return nil, err
		}
		wrapKey, err := deriveKey(c.masterSecret, salt, "edgesec/credstore/wrap-key")
		if err != nil {
			return nil, err
		}
		nonce, ciphertext, err := seal(wrapKey, dataKey)
		if err != nil {
			return nil, err
		}
		if _, err := c.db.Exec(`INSERT INTO secrets (id, value, salt, iv) VALUES (?, ?, ?, ?)`,
			id, hex.EncodeToString(ciphertext), hex.EncodeToString(salt), hex.EncodeToString(nonce)); err != nil {
			return nil, errors.Wrapf(err, errors.KindUnavailable, "credstore: insert secrets row")
		}
		return dataKey, nil

	case err != nil:
		return nil, errors.Wrapf(err, errors.KindUnavailable, "credstore: load secrets row")

	default:
		salt, err := hex.DecodeString(saltHex)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "credstore: decode salt")
		}
		nonce, err := hex.DecodeString(ivHex)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "credstore: decode iv")
		}
		ciphertext, err := hex.DecodeString(valueHex)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "credstore: decode value")
		}
		wrapKey, err := deriveKey(c.masterSecret, salt, "edgesec/credstore/wrap-key")
		if err != nil {
			return nil, err
		}
		return open(wrapKey, nonce, ciphertext)
	}
}

// PutCryptPair encrypts value under the data key for id and persists it in
// the `store` table keyed by key, with id recorded as the foreign key back
// to `secrets` (spec §4.4: put_crypt_pair).
func (c *Context) PutCryptPair(key, id string, value []byte) error {
	dataKey, err := c.dataKey(id)
	if err != nil {
		return err
	}
	nonce, ciphertext, err := seal(dataKey, value)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT INTO store (key, value, id, iv) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, id=excluded.id, iv=excluded.iv
	`, key, hex.EncodeToString(ciphertext), id, hex.EncodeToString(nonce))
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "credstore: upsert store row")
	}
	return nil
}

// Get reverses PutCryptPair, decrypting the value stored under key.
func (c *Context) Get(key string) ([]byte, error) {
	row := c.db.QueryRow(`SELECT value, id, iv FROM store WHERE key = ?`, key)
	var valueHex, id, ivHex string
	if err := row.Scan(&valueHex, &id, &ivHex); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Errorf(errors.KindNotFound, "credstore: no value for key %q", key)
		}
		return nil, errors.Wrapf(err, errors.KindUnavailable, "credstore: load store row")
	}

	dataKey, err := c.dataKey(id)
	if err != nil {
		return nil, err
	}
	nonce, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "credstore: decode iv")
	}
	ciphertext, err := hex.DecodeString(valueHex)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "credstore: decode value")
	}
	return open(dataKey, nonce, ciphertext)
}

// Delete removes the key's value from the store table (CLEAR_PSK).
func (c *Context) Delete(key string) error {
	_, err := c.db.Exec(`DELETE FROM store WHERE key = ?`, key)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "credstore: delete store row")
	}
	return nil
}
