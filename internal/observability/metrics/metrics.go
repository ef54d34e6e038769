package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the credit ledger instruments.
type Metrics struct {
	reservations     metric.Int64Counter
	rollbacks        metric.Int64Counter
	consumptions     metric.Int64Counter
	settlements      metric.Int64Counter
	referralRewards  metric.Int64Counter
	creditsGranted   metric.Int64Counter
	catalogSyncs     metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
	rewardReconciled metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creditledger"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.reservations, err = meter.Int64Counter("creditledger_reservations_total"); err != nil {
		return nil, err
	}
	if m.rollbacks, err = meter.Int64Counter("creditledger_rollbacks_total"); err != nil {
		return nil, err
	}
	if m.consumptions, err = meter.Int64Counter("creditledger_consumptions_total"); err != nil {
		return nil, err
	}
	if m.settlements, err = meter.Int64Counter("creditledger_settlements_total"); err != nil {
		return nil, err
	}
	if m.referralRewards, err = meter.Int64Counter("creditledger_referral_rewards_total"); err != nil {
		return nil, err
	}
	if m.creditsGranted, err = meter.Int64Counter("creditledger_referral_credits_total"); err != nil {
		return nil, err
	}
	if m.catalogSyncs, err = meter.Int64Counter("creditledger_catalog_syncs_total"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("creditledger_rate_limit_denied_total"); err != nil {
		return nil, err
	}
	if m.rewardReconciled, err = meter.Int64Counter("creditledger_rewards_reconciled_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordReservation counts reserve attempts by outcome (free, paid, denied).
func (m *Metrics) RecordReservation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reservations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (m *Metrics) RecordRollback(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.rollbacks.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("source", source))...))
}

func (m *Metrics) RecordConsumption(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.consumptions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("source", source))...))
}

// RecordSettlement counts payment notifications by outcome (processed, replay, error).
func (m *Metrics) RecordSettlement(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.settlements.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (m *Metrics) RecordReferralReward(ctx context.Context, rewardType string, credits int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("reward_type", rewardType))...)
	m.referralRewards.Add(ctx, 1, attrs)
	m.creditsGranted.Add(ctx, int64(credits), attrs)
}

func (m *Metrics) RecordCatalogSync(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.catalogSyncs.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("reason", reason))...))
}

func (m *Metrics) RecordRewardReconciled(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rewardReconciled.Add(ctx, int64(count))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"source":      {},
	"reward_type": {},
	"reason":      {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
