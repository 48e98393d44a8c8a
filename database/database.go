package database

import (
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ErrRenderNotFound is returned when no cached render matches a key
var ErrRenderNotFound = errors.New("render not found")

// RenderState mirrors the loading state a render session finished in
type RenderState string

const (
	RenderStateSuccess   RenderState = "success"
	RenderStateError     RenderState = "error"
	RenderStateCancelled RenderState = "cancelled"
)

// RenderKey identifies the inputs that produce one page image
type RenderKey struct {
	Document         string  `json:"document"`
	PageIndex        int     `json:"pageIndex"`
	Scale            float64 `json:"scale"`
	Rotation         int     `json:"rotation"`
	InteractiveForms bool    `json:"interactiveForms"`
	PixelRatio       float64 `json:"pixelRatio"`
	Format           string  `json:"format"`
}

// RenderRecord is the outcome of one render session
type RenderRecord struct {
	ULID ulid.ULID `json:"id"`
	RenderKey
	State     RenderState   `json:"state"`
	Width     float64       `json:"width"`
	Height    float64       `json:"height"`
	Image     string        `json:"image,omitempty"` // data URL, only for successful renders
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Repository defines database operations
type Repository interface {
	Close() error
	SaveRender(record *RenderRecord) error
	GetRender(id ulid.ULID) (*RenderRecord, error)
	GetCachedRender(key RenderKey, maxAge time.Duration) (*RenderRecord, error)
	GetRecentRenders(limit int) ([]RenderRecord, error)
	DeleteOldRenders(olderThan time.Duration) (int, error)
}

// NewRenderID creates a ULID for a render that happened at t
func NewRenderID(t time.Time) ulid.ULID {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy())
}
