package devserver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"geolayers/internal/feed"
)

const DefaultChunkSize = 500

// Config is the project file served by the development server.
type Config struct {
	SessionToken string          `yaml:"session_token"`
	ChunkSize    int             `yaml:"chunk_size"`
	Projects     []ProjectConfig `yaml:"projects"`

	// relative layer sources are resolved against this directory
	baseDir string
}

type ProjectConfig struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	PublicHash string         `yaml:"public_hash"`
	Center     [2]float64     `yaml:"center"`
	Zoom       int            `yaml:"zoom"`
	Basemaps   []feed.Basemap `yaml:"basemaps"`
	Groups     []GroupConfig  `yaml:"groups"`
}

type GroupConfig struct {
	Name   string        `yaml:"name"`
	Layers []LayerSource `yaml:"layers"`
}

// LayerSource is a layer descriptor plus where its features come from: a file or a
// generated point cloud.
type LayerSource struct {
	feed.LayerConfig `yaml:",inline"`
	Source           string     `yaml:"source"`
	Synthetic        *Synthetic `yaml:"synthetic"`
}

type Synthetic struct {
	Count int        `yaml:"count"`
	BBox  [4]float64 `yaml:"bbox"`
	Seed  int64      `yaml:"seed"`
}

func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.baseDir = filepath.Dir(path)

	return cfg, nil
}

func ParseConfig(r io.Reader) (Config, error) {
	cfg := Config{}
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	for i, p := range cfg.Projects {
		if p.ID == "" {
			return Config{}, fmt.Errorf("project %d has no id", i)
		}
		for j := range p.Basemaps {
			p.Basemaps[j].Options = sanitize(p.Basemaps[j].Options).(map[string]any)
		}
	}

	return cfg, nil
}

func (c Config) resolve(source string) string {
	if source == "" || filepath.IsAbs(source) || c.baseDir == "" {
		return source
	}
	return filepath.Join(c.baseDir, source)
}

// sanitize turns the map[interface{}]interface{} values yaml.v2 produces into
// map[string]any so they can be encoded as json.
func sanitize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = sanitize(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = sanitize(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = sanitize(val)
		}
		return s
	case nil:
		return map[string]any(nil)
	default:
		return t
	}
}
