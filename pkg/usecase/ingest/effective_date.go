package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/thairag/thairag/pkg/model"
	"github.com/thairag/thairag/pkg/utils/logging"
)

// ParseEffectiveDate accepts 2006-01-02 or RFC 3339. Anything else yields now; a warning is
// logged when raw was given but could not be parsed.
func ParseEffectiveDate(ctx context.Context, raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}

	if t, err := time.Parse(model.EffectiveDateLayout, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}

	logging.From(ctx).Warn("invalid effective date, using current time",
		"effective_date", raw, "now", now.Format(model.EffectiveDateLayout))
	return now
}
