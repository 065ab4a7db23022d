package alarms

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateHysteresis(t *testing.T) {
	gap := math.NaN()
	th := DefaultThresholds()
	tests := []struct {
		name   string
		values []float64
		want   Verdict
	}{
		{"three high", []float64{90, 90, 90}, High},
		{"two latest at high mark", []float64{80, 80}, High},
		{"two of three spikes", []float64{85, 50, 85}, High},
		{"older spikes", []float64{50, 85, 85}, High},
		{"spikes with latest below high", []float64{79.9, 85, 90}, High},
		{"one spike", []float64{82, 79, 95}, Hold},
		{"single value", []float64{90}, Hold},
		{"empty", nil, Hold},
		{"two low", []float64{60, 60}, Low},
		{"low with old spike", []float64{60, 65, 95}, Low},
		{"just below low", []float64{69.9, 69.9}, Low},
		{"at low mark", []float64{70, 60}, Hold},
		{"between marks", []float64{60, 75, 90}, Hold},
		{"only first three count", []float64{86, 60, 86, 86}, High},
		{"fourth value ignored", []float64{86, 60, 50, 86}, Hold},
		{"gap between high readings", []float64{82, gap, 82}, Hold},
		{"gap between low readings", []float64{60, gap, 60}, Hold},
		{"latest is gap", []float64{gap, 82, 82}, Hold},
		{"spikes around gap", []float64{90, gap, 90}, High},
		{"gap is not a spike", []float64{gap, gap, 90}, Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.EvaluateHysteresis(tt.values))
		})
	}
}

func TestEvaluateHysteresis_CustomThresholds(t *testing.T) {
	th := Thresholds{High: 50, Spike: 60, Low: 20}
	assert.Equal(t, High, th.EvaluateHysteresis([]float64{55, 51}))
	assert.Equal(t, Hold, th.EvaluateHysteresis([]float64{30, 30}))
	assert.Equal(t, Low, th.EvaluateHysteresis([]float64{10, 19}))
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "hold", Hold.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "low", Low.String())
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	err := Thresholds{High: 0, Spike: 85, Low: 70}.Validate()
	assert.ErrorContains(t, err, "high threshold")

	err = Thresholds{High: 80, Spike: 120, Low: 70}.Validate()
	assert.ErrorContains(t, err, "spike threshold")

	err = Thresholds{High: 60, Spike: 85, Low: 70}.Validate()
	assert.ErrorContains(t, err, "above high threshold")
}
