package internal

import (
	"context"
	"time"

	"github.com/Azunyan1111/go-vapoursynth/internal/vapoursynth"
)

const pacingWaitLogInterval = time.Second

// Pacer はPTSに基づいてフレーム出力タイミングを制御する
type Pacer struct {
	baseWallTime time.Time     // 基準実時刻
	basePTS      int64         // 基準PTS（ミリ秒）
	initialized  bool          // 初期化済みフラグ
	maxWait      time.Duration // 最大待機時間（異常PTS対策）
	now          func() time.Time
}

// NewPacer は新しいPacerを作成する
func NewPacer(maxWait time.Duration) *Pacer {
	return &Pacer{
		maxWait: maxWait,
		now:     time.Now,
	}
}

// FrameTimestampMs はフレーム番号をフレームレートからミリ秒のPTSに変換する
func FrameTimestampMs(n int, fps vapoursynth.Framerate) int64 {
	if fps.Numerator <= 0 || fps.Denominator <= 0 {
		return 0
	}
	return int64(n) * 1000 * fps.Denominator / fps.Numerator
}

// Wait はPTSに基づいて適切なタイミングまで待機する
// 入力がリアルタイムより遅い場合は待機なしで即座に返る
func (p *Pacer) Wait(ctx context.Context, timestampMs int64) error {
	if !p.initialized {
		p.resync(timestampMs)
		return nil
	}

	// 期待出力時刻を計算
	ptsDiff := timestampMs - p.basePTS
	if ptsDiff < 0 {
		// PTSが戻った場合（シーク等）はリセット
		p.resync(timestampMs)
		return nil
	}

	expectedTime := p.baseWallTime.Add(time.Duration(ptsDiff) * time.Millisecond)
	waitDuration := expectedTime.Sub(p.now())
	if waitDuration <= 0 {
		return nil
	}

	// 最大待機時間で制限
	if p.maxWait > 0 && waitDuration > p.maxWait {
		DebugLog("Pacing: clamping wait from %v to %v (PTS jump detected)\n", waitDuration, p.maxWait)
		waitDuration = p.maxWait
	}
	DebugLogPeriodic("pacer.wait", pacingWaitLogInterval, "Pacing: waiting %v (PTS: %dms)\n", waitDuration, timestampMs)

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset はPacerの状態をリセットする（再同期用）
func (p *Pacer) Reset() {
	p.initialized = false
	p.baseWallTime = time.Time{}
	p.basePTS = 0
}

// ShouldDrop はPTSに基づいてフレームを破棄すべきかを判定する
// threshold が0以下の場合は常にfalseを返す（破棄無効）
func (p *Pacer) ShouldDrop(timestampMs int64, threshold time.Duration) bool {
	if threshold <= 0 || !p.initialized {
		return false
	}

	// PTSが戻った場合は破棄しない（リセット処理はWaitで行う）
	ptsDiff := timestampMs - p.basePTS
	if ptsDiff < 0 {
		return false
	}

	expectedTime := p.baseWallTime.Add(time.Duration(ptsDiff) * time.Millisecond)
	lateness := p.now().Sub(expectedTime)

	if lateness > threshold {
		// 大幅遅延時は連続ドロップを避けるため基準時刻を再同期する
		if p.maxWait > 0 && lateness > p.maxWait {
			DebugLog("Pacing drift detected: PTS=%dms, lateness=%v (maxWait=%v), resyncing\n", timestampMs, lateness, p.maxWait)
			p.resync(timestampMs)
			return false
		}
		DebugLog("Dropping frame: PTS=%dms, lateness=%v (threshold=%v)\n", timestampMs, lateness, threshold)
		return true
	}

	return false
}

func (p *Pacer) resync(timestampMs int64) {
	p.baseWallTime = p.now()
	p.basePTS = timestampMs
	p.initialized = true
}
