package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrInvalidRange = errors.New("range must be 1D, 1W, 1M or MAX")

// HistoryRange selects the look-back window and bucket width of a history
// query.
type HistoryRange string

const (
	Range1D  HistoryRange = "1D"  // today, raw samples
	Range1W  HistoryRange = "1W"  // last week, 5-minute buckets
	Range1M  HistoryRange = "1M"  // last month, 15-minute buckets
	RangeMax HistoryRange = "MAX" // all data, hourly buckets
)

type rangeQuery struct {
	bucket string
	since  string
}

const localTime = "time AT TIME ZONE @tz"

var historyRanges = map[HistoryRange]rangeQuery{
	Range1D: {
		bucket: localTime,
		since:  "CURRENT_DATE",
	},
	Range1W: {
		bucket: minuteBucket(5),
		since:  "NOW() - INTERVAL '1 week'",
	},
	Range1M: {
		bucket: minuteBucket(15),
		since:  "NOW() - INTERVAL '1 month'",
	},
	RangeMax: {
		bucket: "date_trunc('hour', " + localTime + ")",
		since:  "'-infinity'",
	},
}

func minuteBucket(width int) string {
	return fmt.Sprintf(
		"(date_trunc('minute', %s) - ((EXTRACT(MINUTE FROM %s)::int %% %d) * INTERVAL '1 minute'))",
		localTime, localTime, width,
	)
}

// ParseRange validates a client supplied range.
func ParseRange(s string) (HistoryRange, error) {
	r := HistoryRange(s)
	if _, ok := historyRanges[r]; !ok {
		return "", ErrInvalidRange
	}
	return r, nil
}

// HistoryPoint is one aggregated bucket of an option's history.
type HistoryPoint struct {
	Time           string   `json:"time"`
	LTP            *float64 `json:"ltp"`
	Delta          *float64 `json:"delta"`
	Gamma          *float64 `json:"gamma"`
	Theta          *float64 `json:"theta"`
	Vega           *float64 `json:"vega"`
	IV             *float64 `json:"iv"`
	OI             *int64   `json:"oi"`
	Volume         *int64   `json:"volume"`
	RiskScore      *float64 `json:"risk_score"`
	Recommendation *string  `json:"recommendation"`
}

func historySQL(q rangeQuery) string {
	return `
SELECT
	` + q.bucket + ` AS bucket,
	avg(ltp)    AS ltp,
	avg(delta)  AS delta,
	avg(gamma)  AS gamma,
	avg(theta)  AS theta,
	avg(vega)   AS vega,
	avg(iv)     AS iv,
	max(oi)     AS oi,
	max(volume) AS volume,
	(array_agg(overall_risk_score ORDER BY time DESC))[1] AS overall_risk_score,
	(array_agg(recommendation ORDER BY time DESC))[1]     AS recommendation
FROM option_greeks
WHERE symbol = @symbol
AND expiry = @expiry::date
AND time >= ` + q.since + `
GROUP BY bucket
ORDER BY bucket ASC`
}

// FetchHistory returns the bucketed history of one contract, oldest first.
func (s *Store) FetchHistory(ctx context.Context, symbol, expiry string, r HistoryRange) ([]HistoryPoint, error) {
	q, ok := historyRanges[r]
	if !ok {
		return nil, ErrInvalidRange
	}
	p := s.poolFor(symbol)

	var rows []historyRow
	err := p.DB.WithContext(ctx).
		Raw(historySQL(q), namedArgs(s.timezone, symbol, expiry)...).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s history query: %w", p.Label, err)
	}
	s.logger.Info("history query",
		zap.String("symbol", symbol),
		zap.String("expiry", expiry),
		zap.String("range", string(r)),
		zap.Int("rows", len(rows)))

	points := make([]HistoryPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, HistoryPoint{
			Time:           row.Bucket.Format(timestampLayout),
			LTP:            row.LTP,
			Delta:          row.Delta,
			Gamma:          row.Gamma,
			Theta:          row.Theta,
			Vega:           row.Vega,
			IV:             row.IV,
			OI:             row.OI,
			Volume:         row.Volume,
			RiskScore:      row.OverallRiskScore,
			Recommendation: row.Recommendation,
		})
	}
	return points, nil
}

func namedArgs(tz, symbol, expiry string) []any {
	return []any{
		sql.Named("tz", tz),
		sql.Named("symbol", symbol),
		sql.Named("expiry", expiry),
	}
}
