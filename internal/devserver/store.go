package devserver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"geolayers/internal/feed"
	"geolayers/internal/geom"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

type layerData struct {
	features   []geom.Feature
	publicHash string
}

// Store holds every project and layer of a Config in memory.
type Store struct {
	chunkSize int
	projects  map[string]feed.Project
	byHash    map[string]string
	layers    map[int]layerData
}

func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	log := logging.GetFromContext(ctx)

	s := &Store{
		chunkSize: cfg.ChunkSize,
		projects:  map[string]feed.Project{},
		byHash:    map[string]string{},
		layers:    map[int]layerData{},
	}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}

	for _, pc := range cfg.Projects {
		p := feed.Project{
			ID:         pc.ID,
			Name:       pc.Name,
			PublicHash: pc.PublicHash,
			Center:     pc.Center,
			Zoom:       pc.Zoom,
			Basemaps:   pc.Basemaps,
		}

		for _, gc := range pc.Groups {
			group := feed.LayerGroup{Name: gc.Name}

			for _, ls := range gc.Layers {
				if _, exists := s.layers[ls.ID]; exists {
					return nil, fmt.Errorf("layer id %d is used more than once", ls.ID)
				}

				features, err := s.features(cfg, ls)
				if err != nil {
					return nil, fmt.Errorf("failed to load layer %s: %w", ls.LayerConfig, err)
				}

				s.layers[ls.ID] = layerData{features: features, publicHash: pc.PublicHash}
				group.Layers = append(group.Layers, ls.LayerConfig)

				log.Info("layer loaded", "project", pc.ID, "layer_id", ls.ID, "features", len(features))
			}

			p.Groups = append(p.Groups, group)
		}

		if _, exists := s.projects[p.ID]; exists {
			return nil, fmt.Errorf("project id %s is used more than once", p.ID)
		}
		s.projects[p.ID] = p
		if p.PublicHash != "" {
			s.byHash[p.PublicHash] = p.ID
		}
	}

	return s, nil
}

func (s *Store) features(cfg Config, ls LayerSource) ([]geom.Feature, error) {
	switch {
	case ls.Synthetic != nil:
		return Generate(*ls.Synthetic), nil
	case ls.Source != "":
		features, err := geom.LoadFile(cfg.resolve(ls.Source))
		if err != nil {
			return nil, err
		}
		return features, nil
	default:
		return nil, nil
	}
}

func (s *Store) Project(id string) (feed.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return feed.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *Store) PublicProject(hash string) (feed.Project, error) {
	id, ok := s.byHash[hash]
	if !ok || hash == "" {
		return feed.Project{}, fmt.Errorf("public project: %w", ErrNotFound)
	}
	return s.projects[id], nil
}

// Chunk returns page cursor (1-based) of a layer. A cursor past the end yields an
// empty chunk.
func (s *Store) Chunk(layerID, cursor int) (geom.Chunk, error) {
	l, ok := s.layers[layerID]
	if !ok {
		return geom.Chunk{}, fmt.Errorf("layer %d: %w", layerID, ErrNotFound)
	}
	return paginate(l.features, cursor, s.chunkSize), nil
}

// PublicChunk is Chunk for callers that only hold the public hash of the project.
func (s *Store) PublicChunk(layerID, cursor int, token string) (geom.Chunk, error) {
	l, ok := s.layers[layerID]
	if !ok {
		return geom.Chunk{}, fmt.Errorf("layer %d: %w", layerID, ErrNotFound)
	}
	if l.publicHash == "" || token != l.publicHash {
		return geom.Chunk{}, fmt.Errorf("layer %d: %w", layerID, ErrForbidden)
	}
	return paginate(l.features, cursor, s.chunkSize), nil
}

func paginate(features []geom.Feature, cursor, size int) geom.Chunk {
	if cursor < feed.FirstCursor {
		cursor = feed.FirstCursor
	}

	start := (cursor - feed.FirstCursor) * size
	if start >= len(features) {
		return geom.Chunk{Features: []geom.Feature{}}
	}

	end := min(start+size, len(features))
	chunk := geom.Chunk{Features: features[start:end]}
	if end < len(features) {
		next := cursor + 1
		chunk.NextChunk = &next
	}
	return chunk
}

// Generate returns count points spread uniformly over bbox (west, south, east, north).
// The same seed always yields the same points and ids.
func Generate(syn Synthetic) []geom.Feature {
	b := syn.BBox
	if b == [4]float64{} {
		b = [4]float64{-180, -85, 180, 85}
	}

	rnd := rand.New(rand.NewSource(syn.Seed))
	features := make([]geom.Feature, 0, syn.Count)

	for i := 0; i < syn.Count; i++ {
		lon := b[0] + rnd.Float64()*(b[2]-b[0])
		lat := b[1] + rnd.Float64()*(b[3]-b[1])

		id := uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%d:%d", syn.Seed, i))
		features = append(features, geom.NewFeature(orb.Point{lon, lat}, map[string]any{
			"id":    id.String(),
			"name":  fmt.Sprintf("point %d", i+1),
			"value": rnd.Intn(1000),
		}))
	}

	return features
}
