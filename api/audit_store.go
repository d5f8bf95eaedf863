package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/roarinpenguin/roarinca/internal/uuid"
	"github.com/roarinpenguin/roarinca/storage"
)

const auditRecordType = "AUDIT"

// auditGenesisHash anchors the first entry of the hash chain. After
// retention pruning, the oldest retained entry is re-anchored to it.
const auditGenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// auditRetentionThreshold is how many appends may pass between retention
// sweeps when no tighter bound follows from auditMaxEntries.
const auditRetentionThreshold = 64

// auditEntry is one persisted link of the audit hash chain.
type auditEntry struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Actor      string `json:"actor,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	PrevHash   string `json:"prev_hash"`
	CreatedAt  string `json:"created_at"`

	createdAtTime time.Time
}

// parseCreatedAt fills createdAtTime from the CreatedAt string. Entries
// written before nanosecond timestamps are parsed with plain RFC3339;
// unparseable values leave the zero time.
func (e *auditEntry) parseCreatedAt() {
	t, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
	if err != nil {
		t, err = time.Parse(time.RFC3339, e.CreatedAt)
		if err != nil {
			return
		}
	}
	e.createdAtTime = t
}

// chainHash is the link value the NEXT entry must carry as PrevHash.
func (e *auditEntry) chainHash() string {
	h := sha256.Sum256([]byte(e.ID + e.PrevHash + e.CreatedAt))
	return hex.EncodeToString(h[:])
}

// appendAuditEntry appends one entry to the persistent chain. The chain
// head is primed from storage on the first append after startup, then
// cached under auditMu.
func (a *API) appendAuditEntry(event AuditEvent, actor, targetType, targetID, detail, remoteAddr string) (*auditEntry, error) {
	a.auditMu.Lock()
	defer a.auditMu.Unlock()

	if !a.auditPrimed {
		entries, err := a.loadAuditEntries()
		if err != nil {
			return nil, fmt.Errorf("priming audit chain head: %w", err)
		}
		if len(entries) == 0 {
			a.auditLastHash = auditGenesisHash
		} else {
			a.auditLastHash = entries[len(entries)-1].chainHash()
		}
		a.auditPrimed = true
	}

	entry := &auditEntry{
		ID:         uuid.New(),
		Action:     string(event),
		Actor:      actor,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
		RemoteAddr: remoteAddr,
		PrevHash:   a.auditLastHash,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := a.putAuditEntry(entry); err != nil {
		return nil, err
	}
	a.auditLastHash = entry.chainHash()

	if a.auditMaxAge > 0 || a.auditMaxEntries > 0 {
		if a.auditAppendsSinceRetention.Add(1) >= int64(a.auditRetentionCheckThreshold()) {
			a.auditAppendsSinceRetention.Store(0)
			if err := a.runAuditRetentionLocked(); err != nil {
				return nil, fmt.Errorf("audit retention: %w", err)
			}
		}
	}
	return entry, nil
}

func (a *API) putAuditEntry(entry *auditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return a.repo.Put(auditRecordType, entry.ID, &storage.Record{Data: data, Version: 1})
}

// loadAuditEntries returns every stored entry, oldest first.
func (a *API) loadAuditEntries() ([]auditEntry, error) {
	ids, err := a.repo.List(auditRecordType)
	if err != nil {
		return nil, err
	}
	entries := make([]auditEntry, 0, len(ids))
	for _, id := range ids {
		rec, err := a.repo.Get(auditRecordType, id)
		if err != nil || rec == nil {
			continue
		}
		var entry auditEntry
		if err := json.Unmarshal(rec.Data, &entry); err != nil {
			continue
		}
		entry.parseCreatedAt()
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].createdAtTime, entries[j].createdAtTime
		if ti.IsZero() || tj.IsZero() {
			return entries[i].CreatedAt < entries[j].CreatedAt
		}
		return ti.Before(tj)
	})
	return entries, nil
}

// listAuditEntries returns every stored entry, newest first, for the
// browsing endpoint.
func (a *API) listAuditEntries() ([]auditEntry, error) {
	entries, err := a.loadAuditEntries()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// auditRetentionCheckThreshold returns the append count between retention
// sweeps. Small auditMaxEntries values tighten the cadence so the trail
// never overshoots its cap by much.
func (a *API) auditRetentionCheckThreshold() int {
	threshold := auditRetentionThreshold
	if a.auditMaxEntries > 0 && a.auditMaxEntries/2 < threshold {
		threshold = a.auditMaxEntries / 2
		if threshold < 1 {
			threshold = 1
		}
	}
	return threshold
}

// runAuditRetentionLocked prunes entries outside the configured bounds and
// re-chains the survivors, anchoring the oldest retained entry back to
// genesis. Rewriting PrevHash changes each entry's own chain hash, so the
// whole retained suffix is rewritten in one pass. Caller holds auditMu.
func (a *API) runAuditRetentionLocked() error {
	entries, err := a.loadAuditEntries()
	if err != nil {
		return err
	}

	keep := entries
	if a.auditMaxAge > 0 {
		cutoff := time.Now().Add(-a.auditMaxAge)
		idx := 0
		for idx < len(keep) && !keep[idx].createdAtTime.IsZero() && keep[idx].createdAtTime.Before(cutoff) {
			idx++
		}
		keep = keep[idx:]
	}
	if a.auditMaxEntries > 0 && len(keep) > a.auditMaxEntries {
		keep = keep[len(keep)-a.auditMaxEntries:]
	}

	pruned := len(entries) - len(keep)
	if pruned == 0 {
		return nil
	}

	for _, entry := range entries[:len(entries)-len(keep)] {
		if err := a.repo.Delete(auditRecordType, entry.ID); err != nil {
			return err
		}
	}

	prevHash := auditGenesisHash
	for i := range keep {
		if keep[i].PrevHash != prevHash {
			keep[i].PrevHash = prevHash
			if err := a.putAuditEntry(&keep[i]); err != nil {
				return err
			}
		}
		prevHash = keep[i].chainHash()
	}
	a.auditLastHash = prevHash

	a.logger.Info("audit retention pruned entries",
		"pruned", pruned,
		"retained", len(keep))
	return nil
}
