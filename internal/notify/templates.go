// Package notify implements event-driven email dispatch: it maps commerce
// lifecycle events to provider template ids, builds the template params for
// each event (delegating order.placed to the assembly pipeline), attaches
// generated documents, and records every attempt.
package notify

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"shopmail/internal/assembly"
	"shopmail/internal/types"
)

// TemplateRef is a template selector for one event: either a single provider
// template id, or a map of country-code/locale keys to template ids. In JSON
// config both shapes are accepted:
//
//	"placed": "17"
//	"placed": {"DE": "18", "de": "19", "default": "17"}
type TemplateRef struct {
	// ID is set for the scalar form.
	ID string

	// ByLocale is set for the map form. Keys are country codes, locales, or
	// the literal "default".
	ByLocale map[string]string
}

func (r *TemplateRef) UnmarshalJSON(data []byte) error {
	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		r.ID = scalar
		r.ByLocale = nil
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		r.ID = num.String()
		r.ByLocale = nil
		return nil
	}

	var byLocale map[string]any
	if err := json.Unmarshal(data, &byLocale); err == nil {
		out := make(map[string]string, len(byLocale))
		for k, v := range byLocale {
			switch tv := v.(type) {
			case string:
				out[k] = tv
			case float64:
				out[k] = fmt.Sprintf("%.0f", tv)
			default:
				return fmt.Errorf("template ref entry %q must be a string or number", k)
			}
		}
		r.ID = ""
		r.ByLocale = out
		return nil
	}

	return fmt.Errorf("template ref must be a string, number, or locale map: %s", string(data))
}

func (r TemplateRef) MarshalJSON() ([]byte, error) {
	if r.ByLocale != nil {
		return json.Marshal(r.ByLocale)
	}
	return json.Marshal(r.ID)
}

// IsZero reports whether no template is configured.
func (r TemplateRef) IsZero() bool {
	return r.ID == "" && len(r.ByLocale) == 0
}

// Resolve picks the template id for a locale. Country code wins over locale,
// then the "default" key, then the first entry in key order.
func (r TemplateRef) Resolve(loc assembly.LocaleInfo) string {
	if r.ByLocale == nil {
		return r.ID
	}
	if loc.CountryCode != nil {
		if id, ok := r.ByLocale[*loc.CountryCode]; ok {
			return id
		}
	}
	if loc.Locale != nil {
		if id, ok := r.ByLocale[*loc.Locale]; ok {
			return id
		}
	}
	if id, ok := r.ByLocale["default"]; ok {
		return id
	}
	// Deterministic "first": smallest key.
	keys := make([]string, 0, len(r.ByLocale))
	for k := range r.ByLocale {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return r.ByLocale[keys[0]]
}

// EventTemplates maps event group -> action -> template ref, mirroring the
// "events" block of the service configuration.
type EventTemplates map[string]map[string]TemplateRef

// Lookup finds the template ref for a dot-separated event. The second return
// is false when the event's group or action is not configured at all, which
// callers treat as "this deployment does not send that email".
func (t EventTemplates) Lookup(event types.EventType) (TemplateRef, bool) {
	group, action := event.Group(), event.Action()
	if group == "" || action == "" {
		return TemplateRef{}, false
	}
	actions, ok := t[group]
	if !ok {
		return TemplateRef{}, false
	}
	ref, ok := actions[action]
	return ref, ok
}

// ParseTemplateRef decodes a single template reference in the same JSON
// format EventTemplates values use. Empty input yields a zero ref.
func ParseTemplateRef(raw string) (TemplateRef, error) {
	var ref TemplateRef
	if strings.TrimSpace(raw) == "" {
		return ref, nil
	}
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return TemplateRef{}, fmt.Errorf("parse template ref: %w", err)
	}
	return ref, nil
}

// ParseEventTemplates decodes the JSON events block.
func ParseEventTemplates(raw string) (EventTemplates, error) {
	if strings.TrimSpace(raw) == "" {
		return EventTemplates{}, nil
	}
	var t EventTemplates
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("parse event templates: %w", err)
	}
	return t, nil
}
