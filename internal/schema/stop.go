package schema

import (
	"encoding/json"
	"fmt"
)

// StopValues accepts either a single string or an array of strings for the
// "stop" sampling parameter and always marshals back as an array.
type StopValues []string

// UnmarshalJSON decodes a string or string array into StopValues.
func (s *StopValues) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}
	var single string
	if errSingle := json.Unmarshal(data, &single); errSingle == nil {
		*s = StopValues{single}
		return nil
	}
	var many []string
	if errMany := json.Unmarshal(data, &many); errMany != nil {
		return fmt.Errorf("stop must be a string or array of strings")
	}
	*s = StopValues(many)
	return nil
}
