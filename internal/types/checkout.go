package types

// CheckoutStep is derived from cart completeness, never stored. The four
// steps are totally ordered; a shopper may never view a step later than
// the resolved one.
type CheckoutStep string

const (
	StepAddress  CheckoutStep = "address"
	StepDelivery CheckoutStep = "delivery"
	StepPayment  CheckoutStep = "payment"
	StepReview   CheckoutStep = "review"
)

var stepOrder = map[CheckoutStep]int{
	StepAddress:  0,
	StepDelivery: 1,
	StepPayment:  2,
	StepReview:   3,
}

func (s CheckoutStep) Valid() bool {
	_, ok := stepOrder[s]
	return ok
}

// Before reports whether s comes earlier than other in checkout order.
func (s CheckoutStep) Before(other CheckoutStep) bool {
	return stepOrder[s] < stepOrder[other]
}

func (s CheckoutStep) String() string {
	return string(s)
}

func ParseCheckoutStep(raw string) (CheckoutStep, bool) {
	s := CheckoutStep(raw)
	if s.Valid() {
		return s, true
	}
	return "", false
}
