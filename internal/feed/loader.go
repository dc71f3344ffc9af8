package feed

import (
	"context"
	"errors"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"geolayers/internal/geom"
)

var tracer = otel.Tracer("geolayers/feed")

// FirstCursor is the cursor of the first chunk of every layer.
const FirstCursor = 1

type ChunkFetcher interface {
	FetchChunk(ctx context.Context, layerID, cursor int, access AccessContext) (geom.Chunk, error)
}

// ChunkFetcherFunc adapts a function to ChunkFetcher.
type ChunkFetcherFunc func(ctx context.Context, layerID, cursor int, access AccessContext) (geom.Chunk, error)

func (f ChunkFetcherFunc) FetchChunk(ctx context.Context, layerID, cursor int, access AccessContext) (geom.Chunk, error) {
	return f(ctx, layerID, cursor, access)
}

// Progress is reported after every chunk a Loader appends.
type Progress struct {
	LayerID  int
	Chunks   int
	Features int
	Done     bool
}

type Loader struct {
	fetcher    ChunkFetcher
	onProgress func(Progress)
}

type LoaderOption func(*Loader)

func WithProgress(fn func(Progress)) LoaderOption {
	return func(l *Loader) {
		l.onProgress = fn
	}
}

func NewLoader(f ChunkFetcher, opts ...LoaderOption) *Loader {
	l := &Loader{fetcher: f}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load pulls every chunk of a layer, one after the other, and returns the accumulated
// collection. A failed fetch ends pagination early and whatever was collected so far is
// returned; the caller cannot tell a short collection from a complete one. A cancelled
// ctx aborts the in-flight fetch the same way.
func (l *Loader) Load(ctx context.Context, layerID int, access AccessContext) geom.FeatureCollection {
	var err error
	fc := geom.FeatureCollection{}

	ctx, span := tracer.Start(ctx, "feed.Load")
	span.SetAttributes(attribute.Int("layer_id", layerID), attribute.String("access", access.String()))
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx).With("layer_id", layerID, "access", access.String())

	if layerID <= 0 {
		log.Warn("refusing to load layer with invalid id")
		return fc
	}

	chunks := 0
	cursor := FirstCursor
	for {
		var chunk geom.Chunk
		chunk, err = l.fetcher.FetchChunk(ctx, layerID, cursor, access)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Debug("layer load cancelled", "cursor", cursor, "features", fc.Len())
			} else {
				log.Warn("chunk fetch failed, keeping partial collection", "cursor", cursor, "features", fc.Len(), "err", err.Error())
			}
			break
		}
		if len(chunk.Features) == 0 {
			break
		}

		fc.Append(chunk.Features...)
		chunks++
		l.progress(Progress{LayerID: layerID, Chunks: chunks, Features: fc.Len()})

		if chunk.NextChunk == nil {
			break
		}
		if *chunk.NextChunk == cursor {
			log.Warn("data source returned the current cursor as next chunk", "cursor", cursor)
			break
		}
		cursor = *chunk.NextChunk
	}

	span.SetAttributes(attribute.Int("chunks", chunks), attribute.Int("features", fc.Len()))
	log.Debug("layer loaded", "chunks", chunks, "features", fc.Len())
	l.progress(Progress{LayerID: layerID, Chunks: chunks, Features: fc.Len(), Done: true})

	return fc
}

func (l *Loader) progress(p Progress) {
	if l.onProgress != nil {
		l.onProgress(p)
	}
}
