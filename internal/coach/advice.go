package coach

// Direction is the cadence-adjustment hypothesis currently under test.
// The app cannot observe cadence; it only suggests a direction and watches
// how heart rate responds.
type Direction int

const (
	DirectionUp Direction = iota
	DirectionDown
)

func (d Direction) Flipped() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

func (d Direction) String() string {
	if d == DirectionUp {
		return "up"
	}
	return "down"
}

// Advice is the guidance the optimiser currently gives the user. Display
// text and status color are derived from the tag, never the other way
// around.
type Advice int

const (
	AdviceIdle Advice = iota
	AdviceLearning
	AdviceIncrease
	AdviceEase
	AdviceGoodHigher
	AdviceGoodEasier
	AdviceFlipToEase
	AdviceFlipToIncrease
	AdviceOptimal
)

var adviceText = map[Advice]string{
	AdviceIdle:           "Press space to start a session",
	AdviceLearning:       "Learning rhythm...",
	AdviceIncrease:       "Increase rhythm",
	AdviceEase:           "Ease rhythm",
	AdviceGoodHigher:     "Good response. Slightly higher rhythm is efficient.",
	AdviceGoodEasier:     "Good response. Slightly easier rhythm is efficient.",
	AdviceFlipToEase:     "Too costly. Next I'll ease rhythm.",
	AdviceFlipToIncrease: "Too easy. Next I'll increase rhythm.",
	AdviceOptimal:        "Optimal rhythm",
}

// Text returns the user-facing guidance string.
func (a Advice) Text() string {
	if text, ok := adviceText[a]; ok {
		return text
	}
	return adviceText[AdviceIdle]
}

// StatusColor classifies advice for display emphasis.
type StatusColor int

const (
	StatusNeutral   StatusColor = iota // idle or still learning
	StatusPositive                     // steady state reached
	StatusAttention                    // active directional guidance
)

// Status derives the display emphasis from the advice tag.
func (a Advice) Status() StatusColor {
	switch a {
	case AdviceIdle, AdviceLearning:
		return StatusNeutral
	case AdviceOptimal:
		return StatusPositive
	default:
		return StatusAttention
	}
}

func (s StatusColor) String() string {
	switch s {
	case StatusPositive:
		return "positive"
	case StatusAttention:
		return "attention"
	default:
		return "neutral"
	}
}
