package ledger

// WrongAnswerPenalty is subtracted from a team's score per wrong answer.
const WrongAnswerPenalty = 10

// Bonus returns the points awarded for the rank-th discovery of a quest.
func Bonus(rank int) int {
	switch rank {
	case 1:
		return 100
	case 2:
		return 75
	case 3:
		return 50
	case 4:
		return 25
	default:
		return 0
	}
}
