package content

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed library.json
var defaultLibrary []byte

// ErrUnknownActivity is returned when an id is not in the library.
var ErrUnknownActivity = errors.New("content: unknown activity")

// Library is the ordered, read-only set of activities loaded at start-up.
type Library struct {
	activities []Activity
	byID       map[string]int
}

// NewLibrary validates activities and indexes them by id.
func NewLibrary(activities []Activity) (*Library, error) {
	v := newValidator()
	lib := &Library{byID: make(map[string]int, len(activities))}
	for i, a := range activities {
		if err := v.Struct(a); err != nil {
			return nil, fmt.Errorf("activity %d (%q): %w", i, a.ID, err)
		}
		if _, dup := lib.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate activity id %q", a.ID)
		}
		lib.byID[a.ID] = len(lib.activities)
		lib.activities = append(lib.activities, a.Clone())
	}
	return lib, nil
}

// Default returns the built-in library.
func Default() (*Library, error) {
	return Parse(defaultLibrary, ".json")
}

// Load reads a library file. ".yaml"/".yml" are decoded as YAML, everything
// else as a JSON array. An empty path returns the built-in library.
func Load(path string) (*Library, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content library: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes library bytes; ext selects the format.
func Parse(data []byte, ext string) (*Library, error) {
	var activities []Activity
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &activities); err != nil {
			return nil, fmt.Errorf("decode yaml library: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &activities); err != nil {
			return nil, fmt.Errorf("decode json library: %w", err)
		}
	}
	return NewLibrary(activities)
}

// All returns a copy of every activity in library order.
func (l *Library) All() []Activity {
	out := make([]Activity, len(l.activities))
	for i, a := range l.activities {
		out[i] = a.Clone()
	}
	return out
}

// Len is the number of activities.
func (l *Library) Len() int { return len(l.activities) }

// ByID looks up one activity.
func (l *Library) ByID(id string) (Activity, error) {
	i, ok := l.byID[id]
	if !ok {
		return Activity{}, fmt.Errorf("%w: %s", ErrUnknownActivity, id)
	}
	return l.activities[i].Clone(), nil
}

// ByDomain returns the activities targeting d, in library order.
func (l *Library) ByDomain(d Domain) []Activity {
	var out []Activity
	for _, a := range l.activities {
		if a.Domain == d {
			out = append(out, a.Clone())
		}
	}
	return out
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("domain", func(fl validator.FieldLevel) bool {
		return Domain(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("activity_type", func(fl validator.FieldLevel) bool {
		_, err := ActivityType(fl.Field().String()).Family()
		return err == nil
	})
	return v
}
