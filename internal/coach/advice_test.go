package coach

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvice_Text(t *testing.T) {
	assert.Equal(t, "Press space to start a session", AdviceIdle.Text())
	assert.Equal(t, "Learning rhythm...", AdviceLearning.Text())
	assert.Equal(t, "Increase rhythm", AdviceIncrease.Text())
	assert.Equal(t, "Ease rhythm", AdviceEase.Text())
	assert.Equal(t, "Optimal rhythm", AdviceOptimal.Text())
}

func TestAdvice_TextFallsBackForUnknownTag(t *testing.T) {
	assert.Equal(t, AdviceIdle.Text(), Advice(999).Text())
}

func TestAdvice_StatusDerivation(t *testing.T) {
	assert.Equal(t, StatusNeutral, AdviceIdle.Status())
	assert.Equal(t, StatusNeutral, AdviceLearning.Status())
	assert.Equal(t, StatusPositive, AdviceOptimal.Status())

	for _, advice := range []Advice{
		AdviceIncrease, AdviceEase,
		AdviceGoodHigher, AdviceGoodEasier,
		AdviceFlipToEase, AdviceFlipToIncrease,
	} {
		assert.Equal(t, StatusAttention, advice.Status(), "advice %d", advice)
	}
}

func TestDirection_Flipped(t *testing.T) {
	assert.Equal(t, DirectionDown, DirectionUp.Flipped())
	assert.Equal(t, DirectionUp, DirectionDown.Flipped())
}
