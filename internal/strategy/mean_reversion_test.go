package strategy

import (
	"testing"
	"time"

	"github.com/solsim/solsim/internal/models"
)

func newEngine() *MeanReversion {
	return New(Config{BuyThreshold: 0.02, SellThreshold: 0.02})
}

func TestEvaluateSides(t *testing.T) {
	tests := []struct {
		name   string
		in     EvalInput
		side   models.Side
		reason string
	}{
		{
			name: "price below band with cash buys",
			in:   EvalInput{Price: 97.9, MovingAverage: 100, WindowFull: true, Cash: 500},
			side: models.SideBuy, reason: "price_below_average",
		},
		{
			name: "price above band with holdings sells",
			in:   EvalInput{Price: 102.1, MovingAverage: 100, WindowFull: true, HoldingsQty: 3},
			side: models.SideSell, reason: "price_above_average",
		},
		{
			name: "price inside band holds",
			in:   EvalInput{Price: 99.5, MovingAverage: 100, WindowFull: true, Cash: 500, HoldingsQty: 3},
			side: models.SideHold, reason: "within_band",
		},
		{
			name: "exactly at buy boundary holds",
			in:   EvalInput{Price: 98, MovingAverage: 100, WindowFull: true, Cash: 500},
			side: models.SideHold, reason: "within_band",
		},
		{
			name: "exactly at sell boundary holds",
			in:   EvalInput{Price: 102, MovingAverage: 100, WindowFull: true, HoldingsQty: 3},
			side: models.SideHold, reason: "within_band",
		},
		{
			name: "below band without cash holds",
			in:   EvalInput{Price: 97, MovingAverage: 100, WindowFull: true, Cash: 0, HoldingsQty: 3},
			side: models.SideHold, reason: "within_band",
		},
		{
			name: "above band without holdings holds",
			in:   EvalInput{Price: 103, MovingAverage: 100, WindowFull: true, Cash: 500},
			side: models.SideHold, reason: "within_band",
		},
		{
			name: "partial window always holds",
			in:   EvalInput{Price: 50, MovingAverage: 100, WindowFull: false, Cash: 500},
			side: models.SideHold, reason: "warming_up",
		},
	}

	engine := newEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := engine.Evaluate(tt.in)
			if sig.Side != tt.side {
				t.Errorf("side = %s, expected %s", sig.Side, tt.side)
			}
			if sig.Reason != tt.reason {
				t.Errorf("reason = %q, expected %q", sig.Reason, tt.reason)
			}
			if sig.Price != tt.in.Price {
				t.Errorf("signal price = %v, expected %v", sig.Price, tt.in.Price)
			}
			if sig.MovingAverage != tt.in.MovingAverage {
				t.Errorf("signal MA = %v, expected %v", sig.MovingAverage, tt.in.MovingAverage)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := newEngine()
	in := EvalInput{
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Price:         95,
		MovingAverage: 100,
		WindowFull:    true,
		Cash:          1000,
	}

	first := engine.Evaluate(in)
	for i := 0; i < 10; i++ {
		if got := engine.Evaluate(in); got != first {
			t.Fatalf("evaluation #%d = %+v, expected %+v", i, got, first)
		}
	}
}
