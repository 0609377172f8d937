package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// DefaultSTUNServer はICEサーバー未指定時に使う
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// WHIPSession はWHIPで確立したVP8送信用のピア接続
type WHIPSession struct {
	PeerConnection *webrtc.PeerConnection
	Track          *webrtc.TrackLocalStaticRTP
	Sender         *webrtc.RTPSender

	// ResourceURL はサーバーが返したLocation（切断時にDELETEする）
	ResourceURL string
	token       string
	client      *http.Client

	lastRTCP atomic.Int64
	onPLI    atomic.Pointer[func()]
}

// NewWHIPSession はVP8トラックを1本持つPeerConnectionを作成する
func NewWHIPSession(iceServers []string) (*WHIPSession, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeVP8, ClockRate: VP8ClockRate,
		},
		PayloadType: VP8PayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	peerConnection, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "vapoursynth",
	)
	if err != nil {
		peerConnection.Close()
		return nil, err
	}
	sender, err := peerConnection.AddTrack(videoTrack)
	if err != nil {
		peerConnection.Close()
		return nil, err
	}

	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		DebugLog("ICE Connection State has changed: %s\n", state.String())
		if state == webrtc.ICEConnectionStateFailed {
			Logger().Warn("ICE connection failed")
		}
	})

	s := &WHIPSession{
		PeerConnection: peerConnection,
		Track:          videoTrack,
		Sender:         sender,
		client:         &http.Client{Timeout: 30 * time.Second},
	}
	s.lastRTCP.Store(time.Now().UnixNano())
	return s, nil
}

// Connect はオファーをWHIPエンドポイントへPOSTし、アンサーを適用する
func (s *WHIPSession) Connect(ctx context.Context, endpoint, token string) error {
	offer, err := s.PeerConnection.CreateOffer(nil)
	if err != nil {
		return err
	}

	gatherComplete := webrtc.GatheringCompletePromise(s.PeerConnection)
	if err := s.PeerConnection.SetLocalDescription(offer); err != nil {
		return err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	localSDP := s.PeerConnection.LocalDescription().SDP
	Logger().Info("sending offer to WHIP server", zap.String("url", endpoint))
	DebugLog("\n=== SDP Offer ===\n%s\n=== End Offer ===\n", localSDP)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(localSDP)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/sdp")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("WHIP server returned status %d: %s", resp.StatusCode, string(body))
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		s.ResourceURL = resolveLocation(endpoint, loc)
	}
	s.token = token

	if err := s.PeerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  string(answer),
	}); err != nil {
		return err
	}
	DebugLog("\n=== SDP Answer ===\n%s\n=== End Answer ===\n", string(answer))
	return nil
}

func resolveLocation(endpoint, loc string) string {
	base, err := url.Parse(endpoint)
	if err != nil {
		return loc
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return loc
	}
	return base.ResolveReference(ref).String()
}

// OnPictureLoss はPLI/FIR受信時に呼ばれる関数を設定する
func (s *WHIPSession) OnPictureLoss(fn func()) {
	s.onPLI.Store(&fn)
}

// SinceLastRTCP は最後にRTCPを受信してからの経過時間を返す
func (s *WHIPSession) SinceLastRTCP() time.Duration {
	return time.Since(time.Unix(0, s.lastRTCP.Load()))
}

// ReadRTCP は送信側のRTCPを読み続ける。接続が閉じると戻る
func (s *WHIPSession) ReadRTCP() {
	for {
		packets, _, err := s.Sender.ReadRTCP()
		if err != nil {
			return
		}
		s.lastRTCP.Store(time.Now().UnixNano())
		for _, pkt := range packets {
			s.handleRTCP(pkt)
		}
	}
}

func (s *WHIPSession) handleRTCP(pkt rtcp.Packet) {
	switch p := pkt.(type) {
	case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
		DebugLog("[RTCP] %T: keyframe requested\n", p)
		if fn := s.onPLI.Load(); fn != nil && *fn != nil {
			(*fn)()
		}
	case *rtcp.ReceiverReport:
		for _, r := range p.Reports {
			lossPercent := float64(r.FractionLost) / 256.0 * 100.0
			DebugLog("[RTCP] RR: SSRC=%x loss=%.1f%% totalLost=%d jitter=%d lastSeq=%d\n",
				r.SSRC, lossPercent, r.TotalLost, r.Jitter, r.LastSequenceNumber)
		}
	case *rtcp.TransportLayerNack:
		for _, nack := range p.Nacks {
			DebugLog("[RTCP] NACK: seqNums=%v\n", nack.PacketList())
		}
	case *rtcp.ReceiverEstimatedMaximumBitrate:
		DebugLog("[RTCP] REMB: bitrate=%.0f bps\n", p.Bitrate)
	default:
		DebugLog("[RTCP] %T\n", pkt)
	}
}

// Close はWHIPリソースを削除し、PeerConnectionを閉じる
func (s *WHIPSession) Close(ctx context.Context) error {
	if s.ResourceURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.ResourceURL, nil)
		if err == nil {
			if s.token != "" {
				req.Header.Set("Authorization", "Bearer "+s.token)
			}
			if resp, err := s.client.Do(req); err != nil {
				Logger().Warn("failed to delete WHIP resource", zap.Error(err))
			} else {
				resp.Body.Close()
			}
		}
	}
	return s.PeerConnection.Close()
}
