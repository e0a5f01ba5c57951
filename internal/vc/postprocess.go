package vc

import (
	"context"

	"github.com/Player124413/PolGen-RVC/internal/audio"
)

// MixParams are the effect settings for assembling a final track from a
// converted vocal and its instrumental.
type MixParams struct {
	VocalGainDB        float64
	InstrumentalGainDB float64
	ReverbRoomSize     float64
	ReverbWet          float64
	ReverbDry          float64
}

// PostProcessor assembles a release track from pipeline output. The core
// engine only produces the converted vocal; mixing and effect chains are a
// separate concern implemented by collaborating services.
type PostProcessor interface {
	Mix(ctx context.Context, vocal, instrumental *audio.Buffer, params MixParams) (*audio.Buffer, error)
}
