package pion

import (
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const silenceFrameDuration = 20 * time.Millisecond

// opus TOC byte plus a zero-length frame decodes as silence
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

// SilenceSource is a local audio source for participants without a
// microphone. It writes Opus silence until stopped.
type SilenceSource struct {
	track *webrtc.TrackLocalStaticSample

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewSilenceSource(streamID string) (*SilenceSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("new silence track: %w", err)
	}

	s := &SilenceSource{
		track: track,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *SilenceSource) Tracks() []port.LocalTrack {
	return []port.LocalTrack{s.track}
}

func (s *SilenceSource) Stop() error {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
	return nil
}

func (s *SilenceSource) run() {
	defer close(s.done)

	ticker := time.NewTicker(silenceFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if err := s.track.WriteSample(media.Sample{Data: silenceFrame, Duration: silenceFrameDuration}); err != nil {
				log.Debug().Err(err).Msg("Silence sample write failed")
			}
		}
	}
}
