package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roarinpenguin/roarinca/internal/util"
	"github.com/roarinpenguin/roarinca/storage"
)

const (
	adminRecordType = "ADMIN"
	adminRecordID   = "admin"

	adminSaltLength     = 16
	minPassphraseLength = 12
)

// adminRecord stores the single admin credential: an Argon2id digest of
// the NFKD-normalized passphrase together with the parameters it was
// derived under, so cost upgrades apply on the next passphrase change
// without invalidating the stored record.
type adminRecord struct {
	Salt           string              `json:"salt"`
	PassphraseHash string              `json:"passphrase_hash"`
	KDF            util.Argon2idParams `json:"kdf"`
	CreatedAt      time.Time           `json:"created_at"`
}

// NeedsSetup reports whether the one-time admin setup is still pending.
// The server uses it to decide whether to print the setup token at start.
func (a *API) NeedsSetup() (bool, error) {
	configured, err := a.adminConfigured()
	return !configured, err
}

// adminConfigured reports whether an admin passphrase has been set up.
func (a *API) adminConfigured() (bool, error) {
	_, err := a.repo.Get(adminRecordType, adminRecordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// saveAdminRecord hashes the passphrase and persists the credential.
func (a *API) saveAdminRecord(passphrase string) error {
	salt, err := util.RandomBytes(adminSaltLength)
	if err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	key, err := util.DeriveArgon2idKey(util.Normalize(passphrase), salt, a.kdfParams)
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)

	record := adminRecord{
		Salt:           hex.EncodeToString(salt),
		PassphraseHash: hex.EncodeToString(key),
		KDF:            a.kdfParams,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return a.repo.Put(adminRecordType, adminRecordID, &storage.Record{Data: data, Version: 1})
}

// verifyAdminPassphrase checks the passphrase against the stored digest.
// The stored KDF parameters are validated against the accepted floor
// before any derivation, so a tampered record cannot downgrade the cost.
func (a *API) verifyAdminPassphrase(passphrase string) (bool, error) {
	rec, err := a.repo.Get(adminRecordType, adminRecordID)
	if err != nil {
		return false, err
	}
	var record adminRecord
	if err := json.Unmarshal(rec.Data, &record); err != nil {
		return false, err
	}
	if err := util.ValidateArgon2idParams(record.KDF); err != nil {
		return false, err
	}
	salt, err := hex.DecodeString(record.Salt)
	if err != nil {
		return false, fmt.Errorf("decoding stored salt: %w", err)
	}
	expected, err := hex.DecodeString(record.PassphraseHash)
	if err != nil {
		return false, fmt.Errorf("decoding stored hash: %w", err)
	}
	return util.CompareArgon2idKey(util.Normalize(passphrase), salt, record.KDF, expected)
}
