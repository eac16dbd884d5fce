package sheets

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/incomesync/internal/projection"
)

// Payload is the JSON body posted to the income_update endpoint.
type Payload struct {
	Resources     projection.Resources `json:"resources"`
	CellLocations map[string]string    `json:"cell_locations"`
	Instance      string               `json:"instance"`
	Sheet         string               `json:"sheet"`
}

// RejectedError reports a push the endpoint answered with a non-2xx status.
type RejectedError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *RejectedError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("sheets: push rejected: %s", e.Status)
	}
	return fmt.Sprintf("sheets: push rejected: %s: %s", e.Status, body)
}
