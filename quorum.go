package solid

import "fmt"

// Threshold is the policy that decides how many accepts make a quorum.
type Threshold int

const (
	// MoreThanTwoThirds requires accepts from more than two thirds of the validators.
	MoreThanTwoThirds Threshold = iota
	// Majority requires accepts from a simple majority of the validators.
	Majority
)

// ParseThreshold parses the names used in configuration files.
func ParseThreshold(s string) (Threshold, error) {
	switch s {
	case "two-thirds", "more-than-two-thirds", "":
		return MoreThanTwoThirds, nil
	case "majority":
		return Majority, nil
	default:
		return 0, fmt.Errorf("unknown accept threshold %q", s)
	}
}

func (t Threshold) String() string {
	switch t {
	case MoreThanTwoThirds:
		return "two-thirds"
	case Majority:
		return "majority"
	default:
		return fmt.Sprintf("Threshold(%d)", int(t))
	}
}

// Quorum returns the number of accepts required among peers validators.
func (t Threshold) Quorum(peers int) int {
	switch t {
	case Majority:
		return peers/2 + 1
	default:
		return peers*2/3 + 1
	}
}

// IsExceeded reports whether accepts is at least the quorum.
func (t Threshold) IsExceeded(accepts, peers int) bool {
	return accepts >= t.Quorum(peers)
}

// IsExactBreach reports whether accepts equals the quorum.
// As accepts only grow, this is true for exactly one count, so actions tied to it fire once.
func (t Threshold) IsExactBreach(accepts, peers int) bool {
	return accepts == t.Quorum(peers)
}

// InverseExceeded reports whether accepts is more than peers minus the quorum,
// that is, whether the remaining validators can no longer reach a quorum on their own.
// For the two-thirds policy this means at least a third of the validators.
func (t Threshold) InverseExceeded(accepts, peers int) bool {
	return accepts > peers-t.Quorum(peers)
}
