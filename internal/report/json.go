package report

import (
	"encoding/json"
	"fmt"

	"github.com/evidentlabs/beacon/internal/model"
)

// JSON renders the full report for downstream tooling, including the stage
// timings the markdown view omits.
func JSON(rep model.Report) ([]byte, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}
	return append(data, '\n'), nil
}
