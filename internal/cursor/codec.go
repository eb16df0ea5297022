package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMalformedCursor indicates a token that cannot be decoded at all:
	// corrupted or forged input. Recoverable by restarting the session.
	ErrMalformedCursor = errors.New("cursor: malformed cursor")
	// ErrMalformedTuple indicates a decodable token whose fields fail
	// validation: most likely a server-side encoding version mismatch.
	ErrMalformedTuple = errors.New("cursor: malformed tuple")
)

const tupleArity = 6

// Encode validates the key and serialises it as a compact JSON array in
// the base64 URL alphabet without padding, so the token can sit in a
// query string or path segment unescaped.
func Encode(k SortKey) (string, error) {
	if err := validate(k); err != nil {
		return "", err
	}
	payload, err := json.Marshal([]any{
		k.RankScore,
		k.TrustScore,
		k.ExpiresAt,
		k.ID,
		k.SnapshotTS,
		k.SlugHash,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedTuple, err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// Decode reverses Encode and re-runs field validation.
func Decode(token string) (SortKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return SortKey{}, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}

	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return SortKey{}, fmt.Errorf("%w: not a tuple", ErrMalformedCursor)
	}
	if len(fields) != tupleArity {
		return SortKey{}, fmt.Errorf("%w: arity %d", ErrMalformedTuple, len(fields))
	}

	var k SortKey
	if err := json.Unmarshal(fields[0], &k.RankScore); err != nil {
		return SortKey{}, fmt.Errorf("%w: rank score", ErrMalformedTuple)
	}
	if err := json.Unmarshal(fields[1], &k.TrustScore); err != nil {
		return SortKey{}, fmt.Errorf("%w: trust score", ErrMalformedTuple)
	}
	if err := json.Unmarshal(fields[2], &k.ExpiresAt); err != nil {
		return SortKey{}, fmt.Errorf("%w: expires at", ErrMalformedTuple)
	}
	if err := json.Unmarshal(fields[3], &k.ID); err != nil {
		return SortKey{}, fmt.Errorf("%w: id", ErrMalformedTuple)
	}
	if err := json.Unmarshal(fields[4], &k.SnapshotTS); err != nil {
		return SortKey{}, fmt.Errorf("%w: snapshot ts", ErrMalformedTuple)
	}
	var slugHash int64
	if err := json.Unmarshal(fields[5], &slugHash); err != nil {
		return SortKey{}, fmt.Errorf("%w: slug hash", ErrMalformedTuple)
	}
	if slugHash < 0 || slugHash > math.MaxUint32 {
		return SortKey{}, fmt.Errorf("%w: slug hash out of range", ErrMalformedTuple)
	}
	k.SlugHash = uint32(slugHash)

	if err := validate(k); err != nil {
		return SortKey{}, err
	}
	return k, nil
}

// IsValid reports whether the token decodes cleanly. Intended for input
// sanitisation before logging or persistence, never for control flow
// that needs the decoded key.
func IsValid(token string) bool {
	_, err := Decode(token)
	return err == nil
}

func validate(k SortKey) error {
	if math.IsNaN(k.RankScore) || math.IsInf(k.RankScore, 0) {
		return fmt.Errorf("%w: rank score not finite", ErrMalformedTuple)
	}
	if math.IsNaN(k.TrustScore) || math.IsInf(k.TrustScore, 0) {
		return fmt.Errorf("%w: trust score not finite", ErrMalformedTuple)
	}
	if k.ExpiresAt == "" {
		return fmt.Errorf("%w: expires at empty", ErrMalformedTuple)
	}
	if k.ID == "" {
		return fmt.Errorf("%w: id empty", ErrMalformedTuple)
	}
	if k.SnapshotTS < 0 {
		return fmt.Errorf("%w: snapshot ts negative", ErrMalformedTuple)
	}
	return nil
}
