package period

import (
	"time"

	"github.com/assocworks/sepa-billing/internal/domain"
	"github.com/assocworks/sepa-billing/internal/domain/models"
	"github.com/assocworks/sepa-billing/pkg/timeutil"
)

// horizonMonths is the fixed generation horizon: one membership year
const horizonMonths = 12

// Generator emits the contiguous billing periods covering twelve months
// from a membership start date. Output is deterministic: the same inputs
// always yield the same sequence.
type Generator struct{}

// NewGenerator creates a billing-period generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns the ordered period sequence for the member.
// Monthly yields 12 periods, quarterly 4, yearly 1; consecutive periods
// satisfy end(k)+1 day = start(k+1), and the union covers exactly the
// twelve months from start.
func (g *Generator) Generate(memberID string, start time.Time, freq models.BillingFrequency) ([]models.BillingPeriod, error) {
	step := freq.Months()
	if step == 0 {
		return nil, domain.ErrUnknownFrequency.
			WithDetail("frequency", string(freq)).
			WithDetail("member_id", memberID)
	}

	anchor := timeutil.DateOf(start)
	count := horizonMonths / step

	periods := make([]models.BillingPeriod, 0, count)
	for k := 0; k < count; k++ {
		periodStart := timeutil.AddMonths(anchor, k*step)
		// End the day before the next period starts so the sequence stays
		// contiguous for mid-month anchors too.
		periodEnd := timeutil.AddMonths(anchor, (k+1)*step).AddDate(0, 0, -1)
		periods = append(periods, models.BillingPeriod{
			MemberID:    memberID,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Frequency:   freq,
		})
	}
	return periods, nil
}
