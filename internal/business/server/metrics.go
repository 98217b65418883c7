package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/config"
	"github.com/hoppermq/streamly-console/internal/middleware/responsewriter"
)

var (
	counter metric.Int64Counter
	hist    metric.Int64Histogram
)

func initMeters(ctx context.Context, cfg *config.Config) error {
	meter := otel.Meter(
		"streamly/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	var err error

	counter, err = meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err = meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return nil
}

// newTraceMiddleware covers every request with a span, a request id and the
// request metrics. The operation is the mux pattern that served the request.
func newTraceMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	traceAttrs := otlp.CreateAttributesFrom(cfg.Application)
	tracer := otel.Tracer("streamly-console/http", trace.WithInstrumentationAttributes(traceAttrs...))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := slogctx.With(r.Context(), commoncfg.AttrRequestID, uuid.NewString())

			parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(parentCtx, r.Method+"-span", trace.WithAttributes(traceAttrs...))
			defer span.End()

			rec := responsewriter.NewRecorder(w)
			req := r.WithContext(ctx)
			requestStartTime := time.Now()

			slogctx.Debug(ctx, "Processing request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(rec, req)

			// the mux sets the pattern on the request it routed
			operation := req.Pattern
			if operation == "" {
				operation = "unmatched"
			}

			span.SetName(operation + "-span")
			span.SetAttributes(
				attribute.String(commoncfg.AttrOperation, operation),
				attribute.Int("http.response.status_code", rec.Status()),
			)

			if counter != nil && hist != nil {
				attrs := metric.WithAttributes(
					otlp.CreateAttributesFrom(cfg.Application,
						attribute.String("userAgent", r.UserAgent()),
						attribute.String(commoncfg.AttrOperation, operation),
						attribute.String("status", strconv.Itoa(rec.Status())),
					)...,
				)

				counter.Add(ctx, 1, attrs)
				hist.Record(ctx, time.Since(requestStartTime).Milliseconds(), attrs)
			}

			slogctx.Debug(ctx, "Finished request", commoncfg.AttrOperation, operation, "status", rec.Status())
		})
	}
}
