package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// checksumTimeLayout fixed-width UTC layout at microsecond precision.
// Postgres timestamptz stores microseconds, so the checksum must not
// depend on nanoseconds that do not survive a round-trip.
const checksumTimeLayout = "2006-01-02T15:04:05.000000Z"

// ChecksumTime normalizes a timestamp to what the checksum (and storage)
// can represent. Writers must persist the normalized value.
func ChecksumTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// CanonicalJSON re-encodes a JSON document with object keys sorted, so the
// checksum is deterministic regardless of the field order the caller's
// snapshot happened to serialize with. nil/empty input canonicalizes to "null".
func CanonicalJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("invalid state snapshot: %w", err)
	}
	// encoding/json sorts map keys, which is the canonical order we rely on
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ComputeChecksum hashes the immutable fields of an audit record, in order:
// tenant, actor, role, action, scope, resource_type, resource_id, before,
// after, justification, created_at. Each field enters the hash as
// "<len>:<value>|" so free-text fields containing the separator cannot make
// two distinct records hash alike.
//
// Returns "sha256:<hex>". The record id does not participate so the
// checksum can be computed before the row id is generated.
func ComputeChecksum(rec *AuditRecord) (string, error) {
	before, err := CanonicalJSON(rec.BeforeState)
	if err != nil {
		return "", fmt.Errorf("before_state: %w", err)
	}
	after, err := CanonicalJSON(rec.AfterState)
	if err != nil {
		return "", fmt.Errorf("after_state: %w", err)
	}

	fields := []string{
		rec.TenantID, rec.ActorID, rec.ActorRole,
		rec.ActionType, string(rec.ActionScope),
		rec.ResourceType, rec.ResourceID,
		before, after,
		rec.Justification,
		ChecksumTime(rec.CreatedAt).Format(checksumTimeLayout),
	}
	h := sha256.New()
	for _, f := range fields {
		fmt.Fprintf(h, "%d:%s|", len(f), f)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
