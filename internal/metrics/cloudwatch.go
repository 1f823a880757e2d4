package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"eventpipe/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// maxDatumsPerCall is the PutMetricData request limit.
const maxDatumsPerCall = 1000

type seriesKey struct {
	name string
	dims string // "k=v|k=v", sorted
}

type series struct {
	unit   cwtypes.StandardUnit
	dims   []cwtypes.Dimension
	count  float64
	sum    float64
	min    float64
	max    float64
	sample bool
}

// CloudWatch aggregates measurements in memory and publishes them in
// batches on Flush. Recording is lock-protected map arithmetic, so the hot
// path never waits on the network.
//
// Metrics emitted (see types.Metric*):
//   - NotificationsReceived: Dims {Channel}
//   - ItemsEnqueued, QueueDepth: Dims {Queue}
//   - ItemsDropped: Dims {Queue, Reason}
//   - ItemsPersisted, PersistFailures, PersistLatency: Dims {Kind}
//   - AlertsDerived, TransportReconnects: no dims
//   - ForwardFailures: Dims {Target}
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger

	mu      sync.Mutex
	pending map[seriesKey]*series
}

var _ Recorder = (*CloudWatch)(nil)

// NewCloudWatch creates a CloudWatch recorder publishing under namespace
// (types.MetricNamespace when empty).
func NewCloudWatch(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatch {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		logger:    logger,
		pending:   make(map[seriesKey]*series),
	}
}

func (c *CloudWatch) NotificationReceived(channel string) {
	c.add(types.MetricNotificationsReceived, cwtypes.StandardUnitCount, 1, types.DimChannel, channel)
}

func (c *CloudWatch) Enqueued(queue string) {
	c.add(types.MetricItemsEnqueued, cwtypes.StandardUnitCount, 1, types.DimQueue, queue)
}

func (c *CloudWatch) Dropped(queue, reason string) {
	c.add(types.MetricItemsDropped, cwtypes.StandardUnitCount, 1, types.DimQueue, queue, types.DimReason, reason)
}

func (c *CloudWatch) Persisted(kind string, latency time.Duration) {
	c.add(types.MetricItemsPersisted, cwtypes.StandardUnitCount, 1, types.DimKind, kind)
	c.observe(types.MetricPersistLatency, cwtypes.StandardUnitMilliseconds, float64(latency.Milliseconds()), types.DimKind, kind)
}

func (c *CloudWatch) PersistFailed(kind string) {
	c.add(types.MetricPersistFailures, cwtypes.StandardUnitCount, 1, types.DimKind, kind)
}

func (c *CloudWatch) AlertDerived() {
	c.add(types.MetricAlertsDerived, cwtypes.StandardUnitCount, 1)
}

func (c *CloudWatch) Reconnected() {
	c.add(types.MetricTransportReconnects, cwtypes.StandardUnitCount, 1)
}

func (c *CloudWatch) ForwardFailed(target string) {
	c.add(types.MetricForwardFailures, cwtypes.StandardUnitCount, 1, types.DimTarget, target)
}

func (c *CloudWatch) QueueDepth(queue string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.get(types.MetricQueueDepth, cwtypes.StandardUnitCount, []string{types.DimQueue, queue})
	s.sum = float64(depth)
	s.count = 1
}

func (c *CloudWatch) add(name string, unit cwtypes.StandardUnit, v float64, dims ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.get(name, unit, dims)
	s.sum += v
	s.count++
}

func (c *CloudWatch) observe(name string, unit cwtypes.StandardUnit, v float64, dims ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.get(name, unit, dims)
	s.sample = true
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.sum += v
	s.count++
}

// get must be called with c.mu held. dims is a flat key/value list.
func (c *CloudWatch) get(name string, unit cwtypes.StandardUnit, dims []string) *series {
	pairs := make([]string, 0, len(dims)/2)
	cwDims := make([]cwtypes.Dimension, 0, len(dims)/2)
	for i := 0; i+1 < len(dims); i += 2 {
		pairs = append(pairs, dims[i]+"="+dims[i+1])
		cwDims = append(cwDims, cwtypes.Dimension{Name: aws.String(dims[i]), Value: aws.String(dims[i+1])})
	}
	sort.Strings(pairs)
	key := seriesKey{name: name, dims: strings.Join(pairs, "|")}

	s, ok := c.pending[key]
	if !ok {
		s = &series{unit: unit, dims: cwDims}
		c.pending[key] = s
	}
	return s
}

// Flush publishes everything aggregated since the previous flush. Errors are
// logged, not returned, and the failed batch is discarded.
func (c *CloudWatch) Flush(ctx context.Context) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[seriesKey]*series, len(pending))
	c.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	now := time.Now().UTC()
	data := make([]cwtypes.MetricDatum, 0, len(pending))
	for key, s := range pending {
		d := cwtypes.MetricDatum{
			MetricName: aws.String(key.name),
			Unit:       s.unit,
			Dimensions: s.dims,
			Timestamp:  aws.Time(now),
		}
		switch {
		case s.sample:
			d.StatisticValues = &cwtypes.StatisticSet{
				SampleCount: aws.Float64(s.count),
				Sum:         aws.Float64(s.sum),
				Minimum:     aws.Float64(s.min),
				Maximum:     aws.Float64(s.max),
			}
		default:
			d.Value = aws.Float64(s.sum)
		}
		data = append(data, d)
	}

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: data[start:end],
		}
		if _, err := c.client.PutMetricData(ctx, input); err != nil {
			c.logger.Error("failed to publish metrics",
				"error", err.Error(),
				"datums", end-start,
			)
		}
	}
}

// Run flushes every interval until ctx is done, then performs a final flush
// with a short detached deadline.
func (c *CloudWatch) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.Flush(flushCtx)
			cancel()
			return
		}
	}
}
