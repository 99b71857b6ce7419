package directory

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomExists         = errors.New("room code already in use")
	ErrInvalidTimeLimit   = errors.New("invalid time limit")
	ErrInvalidCode        = errors.New("invalid room code")
	ErrUnsupportedBackend = errors.New("unsupported directory backend")
)

// TimeLimit is one of the fixed room lifetimes offered at creation.
type TimeLimit string

const (
	Limit5m  TimeLimit = "5m"
	Limit30m TimeLimit = "30m"
	Limit1h  TimeLimit = "1h"
	Limit2h  TimeLimit = "2h"
	Limit5h  TimeLimit = "5h"

	DefaultTimeLimit = Limit1h
)

// TimeLimits lists the accepted limits in ascending order.
var TimeLimits = []TimeLimit{Limit5m, Limit30m, Limit1h, Limit2h, Limit5h}

var limitDurations = map[TimeLimit]time.Duration{
	Limit5m:  5 * time.Minute,
	Limit30m: 30 * time.Minute,
	Limit1h:  time.Hour,
	Limit2h:  2 * time.Hour,
	Limit5h:  5 * time.Hour,
}

func ParseTimeLimit(s string) (TimeLimit, error) {
	t := TimeLimit(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := limitDurations[t]; !ok {
		return "", fmt.Errorf("%w: %q (want one of 5m, 30m, 1h, 2h, 5h)", ErrInvalidTimeLimit, s)
	}
	return t, nil
}

// Duration returns zero for a limit outside the fixed set.
func (t TimeLimit) Duration() time.Duration {
	return limitDurations[t]
}

func (t TimeLimit) Valid() bool {
	_, ok := limitDurations[t]
	return ok
}

// Room is the directory record of a session. It never changes after creation.
type Room struct {
	Code      string    `json:"code" dynamodbav:"code"`
	AdminName string    `json:"admin_username" dynamodbav:"admin_username"`
	TimeLimit TimeLimit `json:"time_limit" dynamodbav:"time_limit"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

func (r *Room) ExpiresAt() time.Time {
	return r.CreatedAt.Add(r.TimeLimit.Duration())
}

// Remaining is clamped at zero.
func (r *Room) Remaining(now time.Time) time.Duration {
	return max(r.ExpiresAt().Sub(now), 0)
}

func (r *Room) Validate() error {
	if err := ValidateCode(r.Code); err != nil {
		return err
	}
	if strings.TrimSpace(r.AdminName) == "" {
		return fmt.Errorf("admin name is required")
	}
	if !r.TimeLimit.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTimeLimit, r.TimeLimit)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// Directory stores room records keyed by code.
type Directory interface {
	Get(ctx context.Context, code string) (*Room, error)
	Create(ctx context.Context, room *Room) error
	Delete(ctx context.Context, code string) error
	Close() error
}

const (
	CodeLength   = 8
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewCode returns a random code of uppercase base36 characters.
func NewCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for range CodeLength {
		b.WriteByte(codeAlphabet[randomIndex(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode upper-cases and trims user input so codes typed in lowercase still match.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCode)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return fmt.Errorf("%w: %q", ErrInvalidCode, code)
		}
	}
	return nil
}

// NewRoom builds a record with a fresh code.
func NewRoom(adminName string, limit TimeLimit, now time.Time) *Room {
	return &Room{
		Code:      NewCode(),
		AdminName: strings.TrimSpace(adminName),
		TimeLimit: limit,
		CreatedAt: now.UTC().Truncate(time.Second),
	}
}

// CreateUnique stores room, drawing a new code when the current one is taken.
func CreateUnique(ctx context.Context, dir Directory, room *Room, attempts int) error {
	for i := 0; i < attempts; i++ {
		err := dir.Create(ctx, room)
		if !errors.Is(err, ErrRoomExists) {
			return err
		}
		room.Code = NewCode()
	}
	return ErrRoomExists
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("directory: random source failed: " + err.Error())
	}
	return int(v.Int64())
}
