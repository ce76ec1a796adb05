// Package pion implements the session negotiator on top of pion/webrtc.
package pion

import (
	"context"
	"fmt"

	"github.com/Wyydra/duet/internal/core/port"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type engineOptions struct {
	iceServers    []webrtc.ICEServer
	net           transport.Net
	loggerFactory logging.LoggerFactory
}

type Option func(*engineOptions)

// WithICEServers adds STUN servers, e.g. "stun:stun.l.google.com:19302".
func WithICEServers(urls ...string) Option {
	return func(o *engineOptions) {
		if len(urls) > 0 {
			o.iceServers = append(o.iceServers, webrtc.ICEServer{URLs: urls})
		}
	}
}

func WithTURN(url, username, credential string) Option {
	return func(o *engineOptions) {
		o.iceServers = append(o.iceServers, webrtc.ICEServer{
			URLs:       []string{url},
			Username:   username,
			Credential: credential,
		})
	}
}

// WithNet replaces the host network, typically with a vnet in tests.
func WithNet(n transport.Net) Option {
	return func(o *engineOptions) {
		o.net = n
	}
}

func WithLoggerFactory(f logging.LoggerFactory) Option {
	return func(o *engineOptions) {
		o.loggerFactory = f
	}
}

// Engine builds one negotiator per call attempt. It implements
// port.NegotiatorFactory.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewEngine(opts ...Option) (*Engine, error) {
	o := engineOptions{
		loggerFactory: NewLoggerFactory(log.With().Str("component", "pion").Logger()),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: o.loggerFactory}
	if o.net != nil {
		se.SetNet(o.net)
	}

	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithSettingEngine(se),
		),
		config: webrtc.Configuration{ICEServers: o.iceServers},
	}, nil
}

func (e *Engine) NewNegotiator(ctx context.Context) (port.Negotiator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newNegotiator(pc), nil
}
