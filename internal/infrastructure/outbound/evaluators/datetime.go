package evaluators

import (
	"context"
	"fmt"
	"strings"

	"github.com/sophialabs/mimic/internal/domain/exchange"
	"github.com/sophialabs/mimic/internal/infrastructure/ports"
)

const iso8601Millis = "2006-01-02T15:04:05.000Z07:00"

// DateTime resolves datetime.now.* from the clock.
type DateTime struct {
	Clock ports.Clock
}

func (d DateTime) Eval(_ context.Context, expr string, _ *exchange.Exchange) (any, error) {
	format, ok := strings.CutPrefix(expr, "datetime.now.")
	if !ok {
		return nil, fmt.Errorf("unsupported datetime expression %q", expr)
	}

	now := d.Clock.Now()
	switch format {
	case "iso8601_date":
		return now.Format("2006-01-02"), nil
	case "iso8601_datetime":
		return now.Format(iso8601Millis), nil
	case "millis":
		return now.UnixMilli(), nil
	case "nanos":
		return now.UnixNano(), nil
	case "unix":
		return now.Unix(), nil
	default:
		return nil, fmt.Errorf("unknown datetime format %q", format)
	}
}
