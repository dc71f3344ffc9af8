package feed

import "fmt"

// AccessContext selects how a data source is addressed: with the caller's ambient
// session, or publicly with an opaque token and an origin forwarded as request metadata.
type AccessContext struct {
	Public bool
	Token  string
	Origin string
}

func Private() AccessContext {
	return AccessContext{}
}

func Public(token, origin string) AccessContext {
	return AccessContext{Public: true, Token: token, Origin: origin}
}

func (a AccessContext) String() string {
	if a.Public {
		return "public"
	}
	return "private"
}

// Project is the definition of a map project as served by the data source.
type Project struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	PublicHash string       `json:"public_hash,omitempty" yaml:"public_hash"`
	Center     [2]float64   `json:"center" yaml:"center"`
	Zoom       int          `json:"zoom" yaml:"zoom"`
	Groups     []LayerGroup `json:"groups" yaml:"groups"`
	Basemaps   []Basemap    `json:"basemaps" yaml:"basemaps"`
}

// Layers flattens every group's layers, keeping group order.
func (p Project) Layers() []LayerConfig {
	var out []LayerConfig
	for _, g := range p.Groups {
		for _, l := range g.Layers {
			if l.Group == "" {
				l.Group = g.Name
			}
			out = append(out, l)
		}
	}
	return out
}

type LayerGroup struct {
	Name   string        `json:"name" yaml:"name"`
	Layers []LayerConfig `json:"layers" yaml:"layers"`
}

type LayerConfig struct {
	ID    int    `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Group string `json:"group,omitempty" yaml:"group"`
	Style Style  `json:"style" yaml:"style"`
}

func (l LayerConfig) String() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("layer %d", l.ID)
}

type Style struct {
	Color string `json:"color,omitempty" yaml:"color"`
	Glyph string `json:"glyph,omitempty" yaml:"glyph"`
}

type Basemap struct {
	ID          int            `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	URLTemplate string         `json:"url_template" yaml:"url_template"`
	Options     map[string]any `json:"options,omitempty" yaml:"options"`
	Provider    string         `json:"provider" yaml:"provider"`
	IsDefault   bool           `json:"is_default" yaml:"is_default"`
}
