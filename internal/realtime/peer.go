package realtime

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrChannelNotOpen = errors.New("data channel not open")

// Peer is one negotiated media and control connection.
type Peer interface {
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(sdp string) error
	Send(data []byte) error
	WriteAudio(opus []byte, samples int) error
	OnOpen(fn func())
	OnMessage(fn func([]byte))
	OnClosed(fn func())
	Close() error
}

type PeerFactory interface {
	NewPeer(label string) (Peer, error)
}

// AudioSink receives opus payloads from the remote audio track.
type AudioSink func(payload []byte)

type PionPeerFactory struct {
	cfg  Config
	api  *webrtc.API
	sink AudioSink
	log  *slog.Logger
}

func NewPionPeerFactory(cfg Config, sink AudioSink, log *slog.Logger) (*PionPeerFactory, error) {
	if log == nil {
		log = slog.Default()
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > cfg.PortRange.Min {
		if err := se.SetEphemeralUDPPortRange(uint16(cfg.PortRange.Min), uint16(cfg.PortRange.Max)); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(se),
	)

	return &PionPeerFactory{
		cfg:  cfg,
		api:  api,
		sink: sink,
		log:  log.With("component", "peer"),
	}, nil
}

func (f *PionPeerFactory) NewPeer(label string) (Peer, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.iceServers()})
	if err != nil {
		return nil, err
	}

	p, err := newPionPeer(pc, label, f.sink, f.log)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return p, nil
}

func (f *PionPeerFactory) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(f.cfg.ICEServers))
	for _, s := range f.cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}

	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	return servers
}

type pionPeer struct {
	pc         *webrtc.PeerConnection
	dc         *webrtc.DataChannel
	audioTrack *webrtc.TrackLocalStaticRTP
	sink       AudioSink
	log        *slog.Logger

	mu        sync.RWMutex
	seq       uint16
	timestamp uint32
	ssrc      uint32
	open      bool
	onOpen    func()
	onMessage func([]byte)
	onClosed  func()
	closeOnce sync.Once
}

func newPionPeer(pc *webrtc.PeerConnection, label string, sink AudioSink, log *slog.Logger) (*pionPeer, error) {
	var ssrcBytes [4]byte
	if _, err := rand.Read(ssrcBytes[:]); err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio",
		"interpreter-audio",
	)
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		return nil, err
	}

	dc, err := pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}

	p := &pionPeer{
		pc:         pc,
		dc:         dc,
		audioTrack: track,
		sink:       sink,
		ssrc:       binary.BigEndian.Uint32(ssrcBytes[:]),
		log:        log,
	}

	dc.OnOpen(func() {
		p.mu.Lock()
		p.open = true
		cb := p.onOpen
		p.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.mu.RLock()
		cb := p.onMessage
		p.mu.RUnlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
	dc.OnClose(p.closed)

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		codec := remote.Codec()
		p.log.Debug("remote track", "kind", remote.Kind().String(), "codec", codec.MimeType, "rate", codec.ClockRate)
		if remote.Kind() == webrtc.RTPCodecTypeAudio {
			go p.readRemoteAudio(remote)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state", "state", state.String())
		if isTerminalState(state) {
			p.closed()
		}
	})

	return p, nil
}

// isTerminalState reports whether the connection cannot recover. Disconnected
// is transient in ICE and may return to connected.
func isTerminalState(state webrtc.PeerConnectionState) bool {
	return state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed
}

func (p *pionPeer) closed() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.open = false
		cb := p.onClosed
		p.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
}

func (p *pionPeer) readRemoteAudio(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	packets := 0
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			p.log.Debug("remote audio ended", "packets", packets, "error", err)
			return
		}
		packets++
		if p.sink == nil {
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err == nil {
			p.sink(pkt.Payload)
		}
	}
}

func (p *pionPeer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}

	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *pionPeer) SetAnswer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (p *pionPeer) Send(data []byte) error {
	p.mu.RLock()
	open := p.open
	p.mu.RUnlock()
	if !open {
		return ErrChannelNotOpen
	}
	return p.dc.SendText(string(data))
}

func (p *pionPeer) WriteAudio(opus []byte, samples int) error {
	p.mu.Lock()
	seq := p.seq
	ts := p.timestamp
	p.seq++
	p.timestamp += uint32(samples)
	p.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           p.ssrc,
		},
		Payload: opus,
	}

	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = p.audioTrack.Write(data)
	return err
}

func (p *pionPeer) OnOpen(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOpen = fn
}

func (p *pionPeer) OnMessage(fn func([]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onMessage = fn
}

func (p *pionPeer) OnClosed(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClosed = fn
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}
