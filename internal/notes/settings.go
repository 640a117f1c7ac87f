package notes

import (
	"context"
	"fmt"

	"mdnotes/internal/model"
)

// EditorSettings returns the user's editor settings, or the defaults when none are stored.
func (s *Service) EditorSettings(ctx context.Context, userID string) (*model.EditorSettings, error) {
	settings, err := s.database.GetEditorSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("getting editor settings: %w", err)
	}
	if settings == nil {
		d := model.DefaultEditorSettings()
		return &d, nil
	}
	return settings, nil
}

// UpdateEditorSettings replaces the user's editor settings.
func (s *Service) UpdateEditorSettings(ctx context.Context, userID string, settings model.EditorSettings) error {
	if settings.FontSize < 8 || settings.FontSize > 48 {
		return invalidf("Font size must be between 8 and 48")
	}
	if err := s.database.SaveEditorSettings(ctx, userID, settings); err != nil {
		return fmt.Errorf("saving editor settings: %w", err)
	}
	return nil
}

// SetKeybinding overrides the key of a named editor command. An empty key
// resets the command to its default.
func (s *Service) SetKeybinding(ctx context.Context, userID, name, key string) error {
	if name == "" || len(name) > 64 {
		return invalidf("Keybinding name must be between 1 and 64 characters")
	}
	if key == "" {
		if err := s.database.DeleteKeybinding(ctx, userID, name); err != nil {
			return fmt.Errorf("resetting keybinding: %w", err)
		}
		return nil
	}
	if len(key) > 64 {
		return invalidf("Key must be at most 64 characters")
	}
	if err := s.database.UpsertKeybinding(ctx, &model.Keybinding{UserID: userID, Name: name, Key: key}); err != nil {
		return fmt.Errorf("saving keybinding: %w", err)
	}
	return nil
}
