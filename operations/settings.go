package operations

import (
	"os"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is where the CLI looks for settings when no
// --conf flag is given.
const DefaultConfigFile = "rowan.yml"

// Settings is the CLI's view of a deployment: where the rows live and
// which upgrades each entity type expects. Transforms live in the
// application's code, so the settings name upgrades without defining
// them and the CLI stays read-only.
type Settings struct {
	MongoURI string           `json:"mongo_uri" yaml:"mongo_uri"`
	Database string           `json:"database" yaml:"database"`
	Entities []EntitySettings `json:"entities" yaml:"entities"`

	LoadedFrom string `json:"-" yaml:"-"`
}

// EntitySettings names one entity type, the collection holding its
// rows, and its upgrade plan in order.
type EntitySettings struct {
	Name       string   `json:"name" yaml:"name"`
	Collection string   `json:"collection" yaml:"collection,omitempty"`
	Upgrades   []string `json:"upgrades" yaml:"upgrades,omitempty"`
}

// NewSettings reads and validates a settings file.
func NewSettings(fn string) (*Settings, error) {
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration from file '%s'", fn)
	}

	conf := &Settings{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "reading YAML data from configuration file '%s'", fn)
	}
	conf.LoadedFrom = fn

	if err := conf.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration in file '%s'", fn)
	}

	return conf, nil
}

func (s *Settings) Validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(s.MongoURI == "", "a mongodb connection string is required")
	catcher.NewWhen(s.Database == "", "a database name is required")
	catcher.NewWhen(len(s.Entities) == 0, "at least one entity is required")

	seen := map[string]bool{}
	for idx, entity := range s.Entities {
		catcher.ErrorfWhen(entity.Name == "", "entity at index %d has no name", idx)
		catcher.ErrorfWhen(seen[entity.Name], "duplicate entity name '%s'", entity.Name)
		seen[entity.Name] = true

		for _, upgrade := range entity.Upgrades {
			catcher.ErrorfWhen(upgrade == "", "entity '%s' has an unnamed upgrade", entity.Name)
		}
	}

	return catcher.Resolve()
}

func (e EntitySettings) collection() string {
	if e.Collection != "" {
		return e.Collection
	}
	return e.Name
}
