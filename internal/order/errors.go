package order

import (
	"fmt"
	"strings"

	"github.com/predikt/tradeclient/internal/types"
)

// ValidationError rejects input client-side before any network call. It is
// surfaced inline; submission is never attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "order: " + e.Reason
}

// UnavailableLiquidityError means a market order was requested with nothing
// resting on the complementary side, so no price can be implied. It is
// surfaced as an actionable message, never substituted with a guessed price.
type UnavailableLiquidityError struct {
	Outcome types.Side // the side being bought
}

func (e *UnavailableLiquidityError) Error() string {
	missing := strings.ToUpper(string(e.Outcome.Opposite()))
	return fmt.Sprintf("order: no resting %s buys to match against; place a limit order instead", missing)
}
