package market

import (
	"sync"
	"time"

	"github.com/google/btree"
)

// DefaultVWAPResolution 默认桶宽
const DefaultVWAPResolution = time.Second

// vwapBucket 一个时间桶，key = floor(ts/resolution)
type vwapBucket struct {
	key int64
	pv  float64
	vol float64
}

func (b *vwapBucket) Less(than btree.Item) bool {
	return b.key < than.(*vwapBucket).key
}

// BucketedVWAP 按固定时间分辨率聚合成交，整桶退出窗口。
//
// 边界误差：桶在其结束时间早于 now-period 时才被移出，因此窗口左边界附近的成交
// 最多会被多计入一个 resolution 的时长。写入时早于 now-period 的成交会被忽略。
type BucketedVWAP struct {
	period     time.Duration
	resolution time.Duration
	now        func() time.Time

	mu       sync.Mutex
	buckets  *btree.BTree
	totalPV  float64
	totalVol float64
}

// NewBucketedVWAP period/resolution<=0 时使用默认值
func NewBucketedVWAP(period, resolution time.Duration) *BucketedVWAP {
	if period <= 0 {
		period = DefaultVWAPPeriod
	}
	if resolution <= 0 {
		resolution = DefaultVWAPResolution
	}
	if resolution > period {
		resolution = period
	}
	return &BucketedVWAP{
		period:     period,
		resolution: resolution,
		now:        time.Now,
		buckets:    btree.New(32),
	}
}

// SetClock 替换时间源（测试用）
func (v *BucketedVWAP) SetClock(now func() time.Time) { v.now = now }

func (v *BucketedVWAP) bucketKey(ts time.Time) int64 {
	return ts.UnixNano() / int64(v.resolution)
}

// AddTrade 写入一笔成交
func (v *BucketedVWAP) AddTrade(price, qty float64, ts time.Time) {
	if qty <= 0 || price <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := v.now().Add(-v.period)
	v.retire(cutoff)
	if ts.Before(cutoff) {
		return
	}

	probe := &vwapBucket{key: v.bucketKey(ts)}
	b, ok := v.buckets.Get(probe).(*vwapBucket)
	if !ok {
		b = probe
		v.buckets.ReplaceOrInsert(b)
	}
	b.pv += price * qty
	b.vol += qty
	v.totalPV += price * qty
	v.totalVol += qty
}

// VWAP 先退出过期桶再计算
func (v *BucketedVWAP) VWAP() (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.retire(v.now().Add(-v.period))
	if v.totalVol <= 0 {
		return 0, false
	}
	return v.totalPV / v.totalVol, true
}

// Buckets 当前桶数量
func (v *BucketedVWAP) Buckets() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buckets.Len()
}

// retire 移出结束时间不晚于 cutoff 的桶
func (v *BucketedVWAP) retire(cutoff time.Time) {
	cutoffKey := v.bucketKey(cutoff)
	for v.buckets.Len() > 0 {
		oldest := v.buckets.Min().(*vwapBucket)
		if oldest.key >= cutoffKey {
			break
		}
		v.buckets.DeleteMin()
		v.totalPV -= oldest.pv
		v.totalVol -= oldest.vol
	}
	if v.buckets.Len() == 0 {
		v.totalPV, v.totalVol = 0, 0
	}
}
