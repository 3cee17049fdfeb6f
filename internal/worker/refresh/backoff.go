package refresh

import "time"

// initialBackoff は更新失敗直後の再試行までの遅延。
const initialBackoff = time.Minute

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回1分、2倍ずつ増加し、通常の更新間隔を上限とする。
func CalculateBackoff(consecutiveErrors int, interval time.Duration) time.Duration {
	delay := initialBackoff
	if delay > interval {
		return interval
	}
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > interval {
			return interval
		}
	}
	return delay
}

// NextDelay は次回の更新までの待ち時間を返す。
// 失敗が続いている間はバックオフ遅延、それ以外は通常の更新間隔を使う。
func NextDelay(consecutiveErrors int, interval time.Duration) time.Duration {
	if consecutiveErrors == 0 {
		return interval
	}
	return CalculateBackoff(consecutiveErrors-1, interval)
}
