package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NotesView is a typed view over the notes the chat backend usually returns.
// Unknown keys are ignored.
type NotesView struct {
	CurrentGoal        string         `json:"currentGoal" mapstructure:"currentGoal"`
	CurrentStepIndices []int          `json:"currentStepIndices" mapstructure:"currentStepIndices"`
	SearchQuery        string         `json:"searchQuery" mapstructure:"searchQuery"`
	CollectedData      map[string]any `json:"collectedData" mapstructure:"collectedData"`
	GoalFirstMsgIndex  int            `json:"goalFirstMsgIndex" mapstructure:"goalFirstMsgIndex"`
}

// DecodeNotes decodes notes into out using mapstructure.
// Numbers that arrive as float64 from JSON are weakly converted.
func DecodeNotes(notes Notes, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to create notes decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(notes)); err != nil {
		return fmt.Errorf("failed to decode notes: %w", err)
	}
	return nil
}

// View decodes the notes into a NotesView.
func (n Notes) View() (NotesView, error) {
	var v NotesView
	if len(n) == 0 {
		return v, nil
	}
	err := DecodeNotes(n, &v)
	return v, err
}
