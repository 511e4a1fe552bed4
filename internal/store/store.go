// Package store persists named audio settings records. Records are kept in
// memory and addressed by generated IDs; the live session reads its startup
// settings from here and writes back on save.
package store

import (
	"crypto/rand"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hertzlab/micboost/internal/types"
)

// validate is the shared validator instance for settings validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// Store holds audio settings records keyed by ID.
type Store struct {
	mu      sync.RWMutex
	records map[string]types.AudioSettings
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]types.AudioSettings)}
}

// Create validates and stores a new record, assigning it a fresh ID. The
// input's ID field is ignored.
func (s *Store) Create(settings types.AudioSettings) (types.AudioSettings, error) {
	settings.ID = ""
	if err := validateSettings(&settings); err != nil {
		return types.AudioSettings{}, err
	}

	shortID, err := generateShortID()
	if err != nil {
		return types.AudioSettings{}, fmt.Errorf("failed to generate ID: %w", err)
	}
	settings.ID = fmt.Sprintf("settings-%s", shortID)

	s.mu.Lock()
	s.records[settings.ID] = settings
	s.mu.Unlock()
	return settings, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (types.AudioSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.records[id]
	if !ok {
		return types.AudioSettings{}, fmt.Errorf("%w: settings %q", types.ErrNotFound, id)
	}
	return settings, nil
}

// List returns all records. Order is unspecified.
func (s *Store) List() []types.AudioSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]types.AudioSettings, 0, len(s.records))
	for _, settings := range s.records {
		result = append(result, settings)
	}
	return result
}

// Update applies a partial update to the record with the given ID. A patch
// that fails validation leaves the record unchanged.
func (s *Store) Update(id string, patch types.AudioSettingsPatch) (types.AudioSettings, error) {
	if err := validatePatch(&patch); err != nil {
		return types.AudioSettings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	settings, ok := s.records[id]
	if !ok {
		return types.AudioSettings{}, fmt.Errorf("%w: settings %q", types.ErrNotFound, id)
	}

	if patch.InputDeviceID != nil {
		settings.InputDeviceID = *patch.InputDeviceID
	}
	if patch.OutputDeviceID != nil {
		settings.OutputDeviceID = *patch.OutputDeviceID
	}
	if patch.BoostLevel != nil {
		settings.BoostLevel = *patch.BoostLevel
	}
	if patch.IsBoostEnabled != nil {
		settings.IsBoostEnabled = *patch.IsBoostEnabled
	}
	if patch.IsMuted != nil {
		settings.IsMuted = *patch.IsMuted
	}

	s.records[id] = settings
	return settings, nil
}

// Delete removes the record with the given ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: settings %q", types.ErrNotFound, id)
	}
	delete(s.records, id)
	return nil
}

func validateSettings(settings *types.AudioSettings) error {
	return convertValidationError(validate.Struct(settings))
}

func validatePatch(patch *types.AudioSettingsPatch) error {
	return convertValidationError(validate.Struct(patch))
}

// convertValidationError maps validator errors to our format.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	verr := types.NewValidationError()
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			verr.Add(e.Field(), formatValidationMessage(e), e.Value())
		}
	} else {
		verr.Add("", err.Error(), nil)
	}
	return verr
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// generateShortID generates a random 8-character hex ID for settings records.
func generateShortID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}
