// Package compliance maps event types to compliance standards and builds
// per-standard reports over the audit ledger.
package compliance

import (
	"fmt"
	"slices"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/persistorai/auditledger/internal/models"
)

// TagTable holds the default compliance tags of each event type.
type TagTable struct {
	fallback []string
	byType   map[models.EventType][]string
}

// DefaultTagTable returns the built-in tag table.
func DefaultTagTable() *TagTable {
	return &TagTable{
		fallback: []string{"SOX"},
		byType: map[models.EventType][]string{
			models.EventPolicyCreated:    {"GDPR", "SOX"},
			models.EventClaimProcessed:   {"HIPAA", "SOX", "PCI-DSS"},
			models.EventFraudDetected:    {"AML", "SOX"},
			models.EventPaymentProcessed: {"PCI-DSS", "SOX"},
			models.EventUserAccess:       {"GDPR", "HIPAA"},
			models.EventDataModified:     {"GDPR", "HIPAA", "SOX"},
		},
	}
}

// LoadTagTable reads a YAML tag file on top of the built-in table. The file has
// an optional "default" list and an "event_types" map; anything it omits keeps
// its built-in value.
func LoadTagTable(path string) (*TagTable, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("compliance: loading tag file %s: %w", path, err)
	}

	t := DefaultTagTable()

	if k.Exists("default") {
		t.fallback = k.Strings("default")
	}

	for _, key := range k.MapKeys("event_types") {
		et, err := models.ParseEventType(key)
		if err != nil {
			return nil, fmt.Errorf("compliance: tag file %s: %w", path, err)
		}
		t.byType[et] = k.Strings("event_types." + key)
	}

	return t, nil
}

// TagsFor returns the default tags of an event type.
func (t *TagTable) TagsFor(et models.EventType) []string {
	if tags, ok := t.byType[et]; ok {
		return slices.Clone(tags)
	}

	return slices.Clone(t.fallback)
}
