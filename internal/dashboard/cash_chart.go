package dashboard

import (
	"context"
	"sort"
	"strconv"
	"time"

	"pdv-backend/internal/auth"
	"pdv-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CashChartPoint struct {
	Label string `json:"label"` // dia / início da semana / início do mês
	Cash  string `json:"cash"`
	Card  string `json:"card"`
	Pix   string `json:"pix"`
	Total string `json:"total"`
}

type CashChartResponse struct {
	BranchID    uint             `json:"branch_id"`
	Period      string           `json:"period"` // daily | weekly | monthly
	From        string           `json:"from"`
	To          string           `json:"to"`
	Points      []CashChartPoint `json:"points"`
	GrandTotals CashChartPoint   `json:"grand_totals"`
}

// Window é o intervalo [Start, End) coberto pelo gráfico.
type Window struct {
	Period string
	Start  time.Time
	End    time.Time
}

// NewWindow: count buckets terminando no bucket que contém now.
func NewWindow(period string, count int, now time.Time) Window {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case "weekly":
		// semanas começam na segunda, como date_trunc('week')
		offset := (int(today.Weekday()) + 6) % 7
		monday := today.AddDate(0, 0, -offset)
		return Window{Period: period, Start: monday.AddDate(0, 0, -7*(count-1)), End: monday.AddDate(0, 0, 7)}
	case "monthly":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Window{Period: period, Start: first.AddDate(0, -(count - 1), 0), End: first.AddDate(0, 1, 0)}
	default:
		return Window{Period: "daily", Start: today.AddDate(0, 0, -(count - 1)), End: today.AddDate(0, 0, 1)}
	}
}

func (w Window) trunc() string {
	switch w.Period {
	case "weekly":
		return "week"
	case "monthly":
		return "month"
	}
	return "day"
}

type chartRow struct {
	Bucket time.Time         `gorm:"column:bucket"`
	Method models.CashMethod `gorm:"column:method"`
	Total  decimal.Decimal   `gorm:"column:total"`
}

type bucketAgg struct {
	bucket time.Time
	byKind map[models.CashMethod]decimal.Decimal
}

func (b *bucketAgg) point(label string) CashChartPoint {
	total := decimal.Zero
	for _, v := range b.byKind {
		total = total.Add(v)
	}
	return CashChartPoint{
		Label: label,
		Cash:  b.byKind[models.CashMethodCash].StringFixed(2),
		Card:  b.byKind[models.CashMethodCard].StringFixed(2),
		Pix:   b.byKind[models.CashMethodPix].StringFixed(2),
		Total: total.StringFixed(2),
	}
}

// aggregate agrupa as linhas por bucket, em ordem cronológica.
func aggregate(rows []chartRow) ([]CashChartPoint, CashChartPoint) {
	buckets := make(map[time.Time]*bucketAgg)
	grand := &bucketAgg{byKind: map[models.CashMethod]decimal.Decimal{}}

	for _, r := range rows {
		agg, ok := buckets[r.Bucket]
		if !ok {
			agg = &bucketAgg{bucket: r.Bucket, byKind: map[models.CashMethod]decimal.Decimal{}}
			buckets[r.Bucket] = agg
		}
		agg.byKind[r.Method] = agg.byKind[r.Method].Add(r.Total)
		grand.byKind[r.Method] = grand.byKind[r.Method].Add(r.Total)
	}

	ordered := make([]*bucketAgg, 0, len(buckets))
	for _, v := range buckets {
		ordered = append(ordered, v)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].bucket.Before(ordered[j].bucket) })

	points := make([]CashChartPoint, 0, len(ordered))
	for _, b := range ordered {
		points = append(points, b.point(b.bucket.Format("2006-01-02")))
	}
	return points, grand.point("total")
}

func queryChart(ctx context.Context, db *gorm.DB, branchID uint, w Window) ([]chartRow, error) {
	var rows []chartRow
	err := db.WithContext(ctx).Raw(`
		SELECT date_trunc(?, m.created_at) AS bucket,
			   m.method,
			   SUM(m.amount) AS total
		FROM cash_movements m
		JOIN cash_sessions s ON s.id = m.cash_session_id
		WHERE s.branch_id = ? AND m.created_at >= ? AND m.created_at < ?
		GROUP BY bucket, m.method
		ORDER BY bucket ASC`,
		w.trunc(), branchID, w.Start, w.End,
	).Scan(&rows).Error
	return rows, err
}

// GET /api/dashboard/cash-chart?period=daily&count=7&branch_id=1
// Saldo líquido dos movimentos por forma de pagamento. super_admin informa branch_id.
func CashChartHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var requested *uint
		if raw := c.Query("branch_id"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || v == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "branch_id inválido")
			}
			b := uint(v)
			requested = &b
		}
		branchID, err := auth.BranchForRequest(c, requested)
		if err != nil {
			return err
		}

		period := c.Query("period", "daily")
		count := 0
		switch period {
		case "weekly":
			count = 8
		case "monthly":
			count = 12
		default:
			period = "daily"
			count = 7
		}
		if raw := c.Query("count"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 366 {
				return fiber.NewError(fiber.StatusBadRequest, "count inválido")
			}
			count = n
		}

		w := NewWindow(period, count, time.Now())
		rows, err := queryChart(c.UserContext(), db, branchID, w)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Erro ao agregar os movimentos")
		}

		points, grand := aggregate(rows)
		return c.JSON(CashChartResponse{
			BranchID:    branchID,
			Period:      w.Period,
			From:        w.Start.Format("2006-01-02"),
			To:          w.End.AddDate(0, 0, -1).Format("2006-01-02"),
			Points:      points,
			GrandTotals: grand,
		})
	}
}
