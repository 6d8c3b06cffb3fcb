package strategy

import (
	"fmt"

	"github.com/arloliu/cohort/types"
)

// ErrNoScenarios indicates that no candidate scenarios were provided.
var ErrNoScenarios = fmt.Errorf("%w: no scenarios available for selection", types.ErrInvalidArgument)
