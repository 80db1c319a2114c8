package subscription

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

func (p Plan) IsPremium() bool {
	return p == PlanPremium
}
