// Package config models the shapes spec.md §6 describes as arriving from
// an external HJSON configuration layer. The core never parses HJSON
// itself (that parser is an out-of-scope collaborator per spec.md §1);
// these structs are what it decodes into after HJSON-to-map conversion,
// following the teacher's go/store/config pattern of tagging config
// structs for a YAML-shaped decode.
package config

// MergeTreeConfig configures one db's MergeTree.
type MergeTreeConfig struct {
	// VSize is the version identifier size in bytes (spec.md §6, default
	// 3; see internal/version's collision-warning Open Question).
	VSize int `yaml:"vSize"`
}

// PerspectiveConfig describes one remote peer a db exchanges versions
// with.
type PerspectiveConfig struct {
	Name string `yaml:"name"`

	// Exactly one of Passdb or Secrets authenticates this perspective;
	// which is out of scope here (passdb verification is an external
	// collaborator, spec.md §1).
	Passdb  string                 `yaml:"passdb,omitempty"`
	Secrets map[string]interface{} `yaml:"secrets,omitempty"`

	// Import/Export may be a plain bool or an object with finer-grained
	// settings; left as interface{} since the core only needs to know
	// whether each is truthy.
	Import interface{} `yaml:"import,omitempty"`
	Export interface{} `yaml:"export,omitempty"`

	Username string `yaml:"username,omitempty"`
	Database string `yaml:"database,omitempty"`
	Port     int    `yaml:"port,omitempty"`
}

// Truthy reports whether an Import/Export value (bool or object) should
// be treated as enabled.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}

// DBConfig configures one database directory.
type DBConfig struct {
	Name         string              `yaml:"name"`
	User         string              `yaml:"user,omitempty"`
	Group        string              `yaml:"group,omitempty"`
	Chroot       string              `yaml:"chroot,omitempty"`
	MergeTree    MergeTreeConfig     `yaml:"mergeTree"`
	Perspectives []PerspectiveConfig `yaml:"perspectives"`
}

// LogConfig mirrors spec.md §6's log object; the console/file/error
// sinks themselves are wired by the out-of-scope supervisor.
type LogConfig struct {
	Console bool   `yaml:"console,omitempty"`
	Level   string `yaml:"level,omitempty"`
	File    string `yaml:"file,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Config is the top-level HJSON object from spec.md §6.
type Config struct {
	User   string     `yaml:"user,omitempty"`
	Group  string     `yaml:"group,omitempty"`
	Chroot string     `yaml:"chroot,omitempty"`
	DBRoot string     `yaml:"dbroot"`
	Log    LogConfig  `yaml:"log"`
	DBs    []DBConfig `yaml:"dbs"`
}
