package database

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// BunRenderRecord represents the render_records table for Bun ORM
type BunRenderRecord struct {
	bun.BaseModel `bun:"table:render_records,alias:r"`

	ID               int64     `bun:"id,pk,autoincrement"`
	ULID             string    `bun:"ulid,notnull,unique"` // Stored as string in DB
	Document         string    `bun:"document,notnull"`
	PageIndex        int       `bun:"page_index,notnull"`
	Scale            float64   `bun:"scale,notnull"`
	Rotation         int       `bun:"rotation,notnull"`
	InteractiveForms bool      `bun:"interactive_forms,notnull"`
	PixelRatio       float64   `bun:"pixel_ratio,notnull"`
	Format           string    `bun:"format,notnull"`
	State            string    `bun:"state,notnull"`
	Width            float64   `bun:"width,notnull"`
	Height           float64   `bun:"height,notnull"`
	Image            string    `bun:"image,nullzero"`
	Error            string    `bun:"error,nullzero"`
	DurationMS       int64     `bun:"duration_ms,notnull"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// ToRenderRecord converts BunRenderRecord to RenderRecord
func (br *BunRenderRecord) ToRenderRecord() (*RenderRecord, error) {
	parsedULID, err := ulid.Parse(br.ULID)
	if err != nil {
		return nil, err
	}

	return &RenderRecord{
		ULID: parsedULID,
		RenderKey: RenderKey{
			Document:         br.Document,
			PageIndex:        br.PageIndex,
			Scale:            br.Scale,
			Rotation:         br.Rotation,
			InteractiveForms: br.InteractiveForms,
			PixelRatio:       br.PixelRatio,
			Format:           br.Format,
		},
		State:     RenderState(br.State),
		Width:     br.Width,
		Height:    br.Height,
		Image:     br.Image,
		Error:     br.Error,
		Duration:  time.Duration(br.DurationMS) * time.Millisecond,
		CreatedAt: br.CreatedAt,
	}, nil
}

// FromRenderRecord converts RenderRecord to BunRenderRecord
func FromRenderRecord(record *RenderRecord) *BunRenderRecord {
	return &BunRenderRecord{
		ULID:             record.ULID.String(),
		Document:         record.Document,
		PageIndex:        record.PageIndex,
		Scale:            record.Scale,
		Rotation:         record.Rotation,
		InteractiveForms: record.InteractiveForms,
		PixelRatio:       record.PixelRatio,
		Format:           record.Format,
		State:            string(record.State),
		Width:            record.Width,
		Height:           record.Height,
		Image:            record.Image,
		Error:            record.Error,
		DurationMS:       record.Duration.Milliseconds(),
		CreatedAt:        record.CreatedAt,
	}
}
