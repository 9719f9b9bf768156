// Package tokens implements the bookkeeping state machine for issued bearer
// tokens: issuance, authentication, revocation, permanent deletion, and
// expired-token cleanup. The package performs no cryptography and no I/O; a
// credential codec and a clock are injected, and every operation is a pure
// function over the token collection snapshot it is handed.
package tokens

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jasonk0/card-count/internal/models"
)

// Error kinds surfaced by the lifecycle. Handlers map these to user-facing
// responses verbatim.
var (
	// ErrInvalidCredential indicates a malformed or unverifiable credential.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpired indicates the credential's embedded expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrRevoked indicates the stored record for the credential is inactive.
	ErrRevoked = errors.New("token revoked")
	// ErrNotFound indicates no token record with the given id exists.
	ErrNotFound = errors.New("token not found")
	// ErrRevokeCurrent rejects revoking the token authenticating the request.
	ErrRevokeCurrent = errors.New("cannot revoke the current token")
	// ErrDeleteCurrent rejects deleting the token authenticating the request.
	ErrDeleteCurrent = errors.New("cannot delete the current token")
)

// Claims are the identity and validity claims embedded in a credential. ID is
// a unique token identifier so two credentials issued in the same second for
// the same user still differ.
type Claims struct {
	ID        string
	UserID    uint64
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and structurally decodes credentials. Decode must verify the
// signature and structure but not the expiry claim; the lifecycle owns expiry
// checks so that revocation can be reported ahead of expiry.
type Codec interface {
	Sign(claims Claims) (string, error)
	Decode(token string) (Claims, error)
}

// Lifecycle evaluates token validity and legal state transitions.
type Lifecycle struct {
	codec Codec
	now   func() time.Time
}

// NewLifecycle constructs a Lifecycle with the given codec and clock. A nil
// clock defaults to time.Now.
func NewLifecycle(codec Codec, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{codec: codec, now: now}
}

// Issue signs a fresh credential for the user and returns its bookkeeping
// record. Multiple simultaneously valid tokens per user are expected; no
// uniqueness constraint applies beyond the credential string itself.
func (l *Lifecycle) Issue(user models.User, expiresIn time.Duration, source, description string) (models.TokenRecord, error) {
	now := l.now().UTC()
	claims := Claims{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		IssuedAt:  now,
		ExpiresAt: now.Add(expiresIn),
	}
	credential, err := l.codec.Sign(claims)
	if err != nil {
		return models.TokenRecord{}, fmt.Errorf("sign token: %w", err)
	}
	return models.TokenRecord{
		ID:          claims.ID,
		Token:       credential,
		UserID:      user.ID,
		Username:    user.Username,
		Description: description,
		Source:      source,
		IsActive:    true,
		CreatedAt:   now,
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// Authenticate validates a candidate credential against the stored records.
// Revocation overrides structural validity, so an inactive record fails with
// ErrRevoked even for a credential that would otherwise verify. A credential
// with no stored record is still accepted when structurally valid and
// unexpired: revocation is advisory and only checked when a record exists.
func (l *Lifecycle) Authenticate(candidate string, records []models.TokenRecord) (Claims, error) {
	claims, err := l.codec.Decode(candidate)
	if err != nil {
		return Claims{}, ErrInvalidCredential
	}
	for _, record := range records {
		if record.Token == candidate && !record.IsActive {
			return Claims{}, ErrRevoked
		}
	}
	if claims.ExpiresAt.Before(l.now()) {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

// Revoke flips the identified record to inactive and stamps the revocation
// metadata. The record backing currentToken cannot be revoked through this
// path, so a caller can never lock itself out mid-request. The updated record
// is returned for the caller to persist.
func (l *Lifecycle) Revoke(records []models.TokenRecord, tokenID, currentToken, revokedBy string) (models.TokenRecord, error) {
	record, ok := findByID(records, tokenID)
	if !ok {
		return models.TokenRecord{}, ErrNotFound
	}
	if record.Token == currentToken {
		return models.TokenRecord{}, ErrRevokeCurrent
	}
	now := l.now().UTC()
	record.IsActive = false
	record.RevokedAt = &now
	record.RevokedBy = revokedBy
	return record, nil
}

// Delete resolves the record to remove permanently, applying the same
// not-found and current-token guards as Revoke. The caller performs the
// actual removal; deletion is irreversible from any state.
func (l *Lifecycle) Delete(records []models.TokenRecord, tokenID, currentToken string) (models.TokenRecord, error) {
	record, ok := findByID(records, tokenID)
	if !ok {
		return models.TokenRecord{}, ErrNotFound
	}
	if record.Token == currentToken {
		return models.TokenRecord{}, ErrDeleteCurrent
	}
	return record, nil
}

// CleanupExpired drops every record whose embedded expiry has passed,
// regardless of the active flag, along with records whose credential no
// longer decodes at all. There is no current-token exemption: an expired
// current token is already unusable and gets purged like any other. The
// operation is idempotent.
func (l *Lifecycle) CleanupExpired(records []models.TokenRecord) (survivors []models.TokenRecord, removed int) {
	now := l.now()
	survivors = make([]models.TokenRecord, 0, len(records))
	for _, record := range records {
		claims, err := l.codec.Decode(record.Token)
		if err != nil || claims.ExpiresAt.Before(now) {
			removed++
			continue
		}
		survivors = append(survivors, record)
	}
	return survivors, removed
}

// Status annotates a token record with its derived validity state.
type Status struct {
	models.TokenRecord
	IsExpired      bool
	TimeRemaining  int64
	IsCurrentToken bool
}

// ListWithStatus annotates every record with expiry state, seconds remaining
// (negative once expired), and whether it backs the current request, sorted
// newest first. A record whose credential fails to decode is reported as
// expired with TimeRemaining -1 instead of failing the whole listing.
func (l *Lifecycle) ListWithStatus(records []models.TokenRecord, currentToken string) []Status {
	now := l.now()
	out := make([]Status, 0, len(records))
	for _, record := range records {
		status := Status{
			TokenRecord:    record,
			IsCurrentToken: record.Token == currentToken,
		}
		claims, err := l.codec.Decode(record.Token)
		if err != nil {
			status.IsExpired = true
			status.TimeRemaining = -1
		} else {
			status.IsExpired = claims.ExpiresAt.Before(now)
			status.TimeRemaining = int64(claims.ExpiresAt.Sub(now) / time.Second)
		}
		out = append(out, status)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ParseExpiresIn parses a duration like "30m", "2h", "7d", or "99y" into a
// time.Duration. Days and years use fixed 24-hour and 365-day lengths.
func ParseExpiresIn(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < 2 {
		return 0, fmt.Errorf("invalid expires-in %q", value)
	}
	amount, err := strconv.Atoi(trimmed[:len(trimmed)-1])
	if err != nil || amount <= 0 {
		return 0, fmt.Errorf("invalid expires-in %q", value)
	}
	switch trimmed[len(trimmed)-1] {
	case 's':
		return time.Duration(amount) * time.Second, nil
	case 'm':
		return time.Duration(amount) * time.Minute, nil
	case 'h':
		return time.Duration(amount) * time.Hour, nil
	case 'd':
		return time.Duration(amount) * 24 * time.Hour, nil
	case 'y':
		return time.Duration(amount) * 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid expires-in unit in %q", value)
	}
}

// findByID returns a copy of the record with the given id.
func findByID(records []models.TokenRecord, tokenID string) (models.TokenRecord, bool) {
	for _, record := range records {
		if record.ID == tokenID {
			return record, true
		}
	}
	return models.TokenRecord{}, false
}
