package app

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ggonzalez94/wallet-agent/internal/orchestrator"
)

// intentValue accepts intent names case-insensitively and stores the canonical form.
type intentValue struct {
	target *orchestrator.Intent
}

var _ pflag.Value = (*intentValue)(nil)

func newIntentValue(target *orchestrator.Intent) *intentValue {
	return &intentValue{target: target}
}

func (v *intentValue) String() string {
	if v.target == nil {
		return ""
	}
	return string(*v.target)
}

func (v *intentValue) Set(raw string) error {
	for _, intent := range []orchestrator.Intent{orchestrator.IntentSwap, orchestrator.IntentBridge, orchestrator.IntentTransfer} {
		if strings.EqualFold(strings.TrimSpace(raw), string(intent)) {
			*v.target = intent
			return nil
		}
	}
	return fmt.Errorf("invalid argument %q: expected Swap, Bridge or Transfer", raw)
}

func (v *intentValue) Type() string { return "intent" }
