package bluegreen

import (
	"time"

	"github.com/go-go-golems/swaperoo/pkg/errs"
)

// Strategy controls whether a validated deployment swaps the alias
// automatically or waits for manual promotion.
type Strategy string

const (
	StrategySafe     Strategy = "safe"
	StrategyAutoSwap Strategy = "auto-swap"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategySafe, "":
		return StrategySafe, nil
	case StrategyAutoSwap:
		return StrategyAutoSwap, nil
	default:
		return "", errs.New(errs.KindInvalidArgument, "unsupported strategy %q", s)
	}
}

// Status is the per-alias deployment state machine position.
type Status string

const (
	StatusIdle         Status = "IDLE"
	StatusDeploying    Status = "DEPLOYING"
	StatusReadyForSwap Status = "READY_FOR_SWAP"
	StatusSwapping     Status = "SWAPPING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusRollingBack  Status = "ROLLING_BACK"
)

// DeploymentState is derived on demand from the alias binding and the
// index pattern; it is never persisted.
type DeploymentState struct {
	Alias          string    `json:"alias"`
	ActiveColor    Color     `json:"activeColor,omitempty"`
	ActiveIndex    string    `json:"activeIndex,omitempty"`
	StagingColor   Color     `json:"stagingColor,omitempty"`
	StagingIndex   string    `json:"stagingIndex,omitempty"`
	Status         Status    `json:"status"`
	LastDeployment time.Time `json:"lastDeployment,omitempty"`
	Strategy       Strategy  `json:"strategy,omitempty"`
	Error          string    `json:"error,omitempty"`
}
