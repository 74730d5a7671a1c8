package sim

import (
	"math"
	"math/rand"

	"github.com/fixmux/fixmux/internal/position"
)

const constellationSize = 24

// skyTrack is one satellite's slowly moving place in the sky.
type skyTrack struct {
	prn       int
	elevation float64
	azimuth   float64
	drift     float64 // degrees of azimuth per tick
	climb     float64 // degrees of elevation per tick
}

func newSky(rng *rand.Rand) []skyTrack {
	sky := make([]skyTrack, constellationSize)
	for i := range sky {
		sky[i] = skyTrack{
			prn:       i + 1,
			elevation: rng.Float64()*120 - 30,
			azimuth:   rng.Float64() * 360,
			drift:     0.02 + rng.Float64()*0.05,
			climb:     (rng.Float64() - 0.5) * 0.1,
		}
	}
	return sky
}

func (s *Service) advanceSky() {
	for i := range s.sky {
		t := &s.sky[i]
		t.azimuth = math.Mod(t.azimuth+t.drift, 360)
		t.elevation += t.climb
		if t.elevation > 90 || t.elevation < -30 {
			t.climb = -t.climb
		}
	}
}

// visible returns the satellites above the horizon with fresh signal
// strengths.
func (s *Service) visible() []position.Satellite {
	var sats []position.Satellite
	for _, t := range s.sky {
		if t.elevation <= 5 {
			continue
		}
		snr := 12 + t.elevation/3 + s.rng.Float64()*10
		sats = append(sats, position.Satellite{
			PRN:          t.prn,
			Elevation:    math.Min(t.elevation, 90),
			Azimuth:      t.azimuth,
			SNR:          math.Round(snr*10) / 10,
			UsedInFix:    snr > 25,
			HasAlmanac:   true,
			HasEphemeris: snr > 20,
		})
	}
	return sats
}
