// Package stream abstracts the broadcast provider that gives a node its
// outbound stream endpoint. The provider's authentication and
// stream-creation flow lives outside this process; the core only consumes
// the ingest URL and the broadcast identifier it publishes as stream_ref.
package stream

import (
	"context"
	"fmt"
)

// Info is what a provider yields for this node.
type Info struct {
	// IngestURL is where the encoder sends the outbound stream
	// (e.g. an RTMP endpoint). Empty means streaming is disabled.
	IngestURL string

	// StreamRef is the opaque broadcast identifier other nodes can use to
	// find this node's stream. It is published in the presence record.
	StreamRef string
}

// Provider yields this node's stream endpoint.
type Provider interface {
	EnsureStream(ctx context.Context) (Info, error)
}

// StaticProvider returns endpoints handed in through configuration, for
// deployments where the broadcast is provisioned out of band.
type StaticProvider struct {
	info Info
}

func NewStaticProvider(ingestURL, streamRef string) *StaticProvider {
	return &StaticProvider{info: Info{IngestURL: ingestURL, StreamRef: streamRef}}
}

func (p *StaticProvider) EnsureStream(ctx context.Context) (Info, error) {
	if p.info.IngestURL != "" && p.info.StreamRef == "" {
		return Info{}, fmt.Errorf("stream ingest URL configured without a stream ref")
	}
	return p.info, nil
}
