package pkg

import (
	"fmt"
	"strings"
)

// NodeSpec is one configured replica of a run.
type NodeSpec struct {
	Id        string `json:"id"`
	IsFailing bool   `json:"isFailing"`
}

// OwnerValue is the portion of the shared set contributed by one owner, as seen
// by the reporting replica. Owner and ContainedSimulatedFailure are facts about
// the owner and are equal wherever the same owner appears.
type OwnerValue struct {
	Owner                     string `json:"owner"`
	ContainedSimulatedFailure bool   `json:"containedSimulatedFailure"`
	Values                    []any  `json:"values"`
}

// OutcomeRecord is what a replica reports once its run is over.
type OutcomeRecord struct {
	Id         string       `json:"id"`
	HadFailure bool         `json:"hadFailure"`
	FinalValue []OwnerValue `json:"finalValue"`
}

// OwnerAnnouncement is the element a replica adds to the shared set on startup.
// ValuesSet names the owner-scoped set that holds the owner's items.
type OwnerAnnouncement struct {
	Owner                     string `json:"owner"`
	ContainedSimulatedFailure bool   `json:"containedSimulatedFailure"`
	ValuesSet                 string `json:"valuesSet"`
}

func OwnerSetName(id string) string {
	return "set of: " + id
}

// ParseFailing reads the failing flag of a node from the command line.
func ParseFailing(token string) (bool, error) {
	switch strings.ToLower(token) {
	case "fail", "true", "1", "yes":
		return true, nil
	case "", "ok", "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid failing flag %q (want fail or ok)", token)
	}
}

func FailingToken(failing bool) string {
	if failing {
		return "fail"
	}
	return "ok"
}
