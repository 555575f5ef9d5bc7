package arithmetic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-chi-calculator/internal/calculator"
	"go-chi-calculator/internal/handlers"
	"go-chi-calculator/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracer is the arithmetic endpoints' dedicated OpenTelemetry tracer.
var tracer = otel.Tracer("arithmetic")

// MaxExpressionLength bounds the expressions accepted over HTTP, which keeps
// parser recursion shallow.
const MaxExpressionLength = 1024

const maxBodyBytes = 64 << 10

// operations maps the names used on the wire to calculator operators.
var operations = map[string]string{
	"add":      calculator.OpAdd,
	"subtract": calculator.OpSubtract,
	"multiply": calculator.OpMultiply,
	"divide":   calculator.OpDivide,
	"power":    calculator.OpPower,
}

func operatorFor(name string) (string, bool) {
	if op, ok := operations[name]; ok {
		return op, true
	}
	if calculator.IsBinaryOperator(name) {
		return name, true
	}
	return "", false
}

// StatusFor maps an error to the HTTP status used for it.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, calculator.ErrBusy):
		return http.StatusConflict
	case calculator.IsKind(err, calculator.IndexOutOfRange):
		return http.StatusNotFound
	}
	if _, ok := calculator.KindOf(err); ok {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorMessage is the text written in an error body: the display indicator,
// followed by the underlying detail when there is one.
func ErrorMessage(err error) string {
	var ce *calculator.Error
	if !errors.As(err, &ce) {
		return err.Error()
	}
	msg := calculator.DisplayMessage(err)
	if ce.Cause != nil {
		msg += ": " + ce.Cause.Error()
	}
	return msg
}

// recordFailure reports a calculator error, tagging the counter with its kind.
func recordFailure(w http.ResponseWriter, r *http.Request, span trace.Span, logger *zap.Logger, opName string, err error) {
	ctx := r.Context()
	if kind, ok := calculator.KindOf(err); ok {
		span.SetAttributes(attribute.String("calculator.error.kind", string(kind)))
	}
	observability.RecordError(ctx, span, logger, errorCounter, opName, ErrorMessage(err), err, StatusFor(err), w)
}

// ---------------------------------------------------------------------------
// Handlers: binary operations
// ---------------------------------------------------------------------------

// Add handles POST /calculator/add
func Add(w http.ResponseWriter, r *http.Request) {
	handleBinaryOp(w, r, "add")
}

// Subtract handles POST /calculator/subtract
func Subtract(w http.ResponseWriter, r *http.Request) {
	handleBinaryOp(w, r, "subtract")
}

// Multiply handles POST /calculator/multiply
func Multiply(w http.ResponseWriter, r *http.Request) {
	handleBinaryOp(w, r, "multiply")
}

// Divide handles POST /calculator/divide
func Divide(w http.ResponseWriter, r *http.Request) {
	handleBinaryOp(w, r, "divide")
}

// Power handles POST /calculator/power
func Power(w http.ResponseWriter, r *http.Request) {
	handleBinaryOp(w, r, "power")
}

// handleBinaryOp is the shared implementation for the JSON binary operations.
func handleBinaryOp(w http.ResponseWriter, r *http.Request, opName string) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, fmt.Sprintf("calculator.%s", opName),
		trace.WithAttributes(
			attribute.String("calculator.operation", opName),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req CalcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, opName, "invalid request body", err, http.StatusBadRequest, w)
		return
	}

	span.SetAttributes(
		attribute.Float64("calculator.operand.a", req.A),
		attribute.Float64("calculator.operand.b", req.B),
	)

	op, _ := operatorFor(opName)
	start := time.Now()
	result, err := calculator.Calculate(req.A, req.B, op)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0 // ms

	if err != nil {
		recordFailure(w, r, span, logger, opName, err)
		return
	}

	recordSuccess(ctx, span, opName, result, elapsed)

	logger.Info("calculator operation completed",
		zap.String("operation", opName),
		zap.Float64("a", req.A),
		zap.Float64("b", req.B),
		zap.Float64("result", result),
		zap.String("request_id", requestID),
		zap.Float64("duration_ms", elapsed),
	)

	handlers.WriteJSON(w, http.StatusOK, CalcResponse{
		Operation: opName,
		A:         req.A,
		B:         req.B,
		Result:    result,
		Display:   calculator.FormatNumber(result),
	})
}

func recordSuccess(ctx context.Context, span trace.Span, opName string, result, elapsed float64) {
	attrs := metric.WithAttributes(attribute.String("operation", opName))
	opsCounter.Add(ctx, 1, attrs)
	opsHistogram.Record(ctx, elapsed, attrs)
	resultGauge.Record(ctx, result, attrs)

	span.AddEvent("computation.complete", trace.WithAttributes(
		attribute.Float64("result", result),
		attribute.Float64("duration_ms", elapsed),
	))
	span.SetAttributes(attribute.Float64("calculator.result", result))
	span.SetStatus(codes.Ok, "")
}

// ---------------------------------------------------------------------------
// Handler: query-string arithmetic service
// ---------------------------------------------------------------------------

// Arithmetic handles GET /arithmetic?operation=power&operand1=2&operand2=10.
// Remote sessions call it for powers; the other binary operations are
// accepted too.
func Arithmetic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)

	q := r.URL.Query()
	opName := q.Get("operation")

	ctx, span := tracer.Start(ctx, "arithmetic.query",
		trace.WithAttributes(
			attribute.String("calculator.operation", opName),
			attribute.String("request.id", observability.RequestIDFromContext(ctx)),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	op, ok := operations[opName]
	if !ok {
		observability.RecordError(ctx, span, logger, errorCounter, opName, "unsupported operation",
			fmt.Errorf("operation %q", opName), http.StatusBadRequest, w)
		return
	}

	start := time.Now()
	result, err := calculator.Calculate(q.Get("operand1"), q.Get("operand2"), op)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		recordFailure(w, r, span, logger, opName, err)
		return
	}

	recordSuccess(ctx, span, opName, result, elapsed)

	logger.Info("arithmetic query completed",
		zap.String("operation", opName),
		zap.String("operand1", q.Get("operand1")),
		zap.String("operand2", q.Get("operand2")),
		zap.Float64("result", result),
	)

	handlers.WriteJSON(w, http.StatusOK, ResultResponse{Result: result})
}

// ---------------------------------------------------------------------------
// Handler: expression evaluation
// ---------------------------------------------------------------------------

// Evaluate handles POST /calculator/evaluate.
func Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)

	ctx, span := tracer.Start(ctx, "calculator.evaluate",
		trace.WithAttributes(
			attribute.String("request.id", observability.RequestIDFromContext(ctx)),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, "evaluate", "invalid request body", err, http.StatusBadRequest, w)
		return
	}
	if len(req.Expression) > MaxExpressionLength {
		observability.RecordError(ctx, span, logger, errorCounter, "evaluate", "expression too long",
			fmt.Errorf("%d bytes exceeds %d", len(req.Expression), MaxExpressionLength), http.StatusBadRequest, w)
		return
	}

	span.SetAttributes(attribute.String("calculator.expression", req.Expression))

	start := time.Now()
	result, err := calculator.Evaluate(req.Expression)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		recordFailure(w, r, span, logger, "evaluate", err)
		return
	}

	recordSuccess(ctx, span, "evaluate", result, elapsed)

	logger.Info("expression evaluated",
		zap.String("expression", req.Expression),
		zap.Float64("result", result),
		zap.Float64("duration_ms", elapsed),
	)

	handlers.WriteJSON(w, http.StatusOK, EvaluateResponse{
		Expression: req.Expression,
		Result:     result,
		Display:    calculator.FormatNumber(result),
	})
}

// ---------------------------------------------------------------------------
// Handler: chained operations
// ---------------------------------------------------------------------------

// Chain handles POST /calculator/chain: runs a sequence of operations on a
// running total with a child span for every step.
func Chain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, "calculator.chain",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	var req ChainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, "chain", "invalid request body", err, http.StatusBadRequest, w)
		return
	}

	if len(req.Steps) == 0 {
		observability.RecordError(ctx, span, logger, errorCounter, "chain", "no steps provided", fmt.Errorf("steps array is empty"), http.StatusBadRequest, w)
		return
	}

	span.SetAttributes(
		attribute.Float64("chain.initial", req.Initial),
		attribute.Int("chain.steps_count", len(req.Steps)),
	)

	logger.Info("starting chained calculation",
		zap.Float64("initial", req.Initial),
		zap.Int("steps", len(req.Steps)),
		zap.String("request_id", requestID),
	)

	running := req.Initial
	results := make([]ChainResult, 0, len(req.Steps))

	for i, step := range req.Steps {
		_, stepSpan := tracer.Start(ctx, fmt.Sprintf("calculator.chain.step.%d.%s", i, step.Op),
			trace.WithAttributes(
				attribute.Int("chain.step.index", i),
				attribute.String("chain.step.operation", step.Op),
				attribute.Float64("chain.step.input", running),
				attribute.Float64("chain.step.value", step.Value),
			),
		)

		stepStart := time.Now()
		prev := running

		var err error
		if op, ok := operatorFor(step.Op); ok {
			running, err = calculator.Calculate(prev, step.Value, op)
		} else {
			err = &calculator.Error{
				Kind:    calculator.InvalidOperand,
				Op:      "chain",
				Message: calculator.GenericMessage,
				Cause:   fmt.Errorf("unknown operation %q", step.Op),
			}
		}

		stepElapsed := float64(time.Since(stepStart).Microseconds()) / 1000.0

		if err != nil {
			err = fmt.Errorf("step %d: %w", i, err)

			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("failed at step %d", i))

			errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", step.Op)))

			logger.Error("chain step failed",
				zap.Int("step", i),
				zap.String("operation", step.Op),
				zap.Error(err),
				zap.String("request_id", requestID),
			)

			handlers.WriteError(w, StatusFor(err), fmt.Sprintf("step %d: %s", i, ErrorMessage(err)))
			return
		}

		attrs := metric.WithAttributes(attribute.String("operation", step.Op))
		opsCounter.Add(ctx, 1, attrs)
		opsHistogram.Record(ctx, stepElapsed, attrs)

		stepSpan.AddEvent("step.complete", trace.WithAttributes(
			attribute.Float64("input", prev),
			attribute.Float64("result", running),
		))
		stepSpan.SetAttributes(attribute.Float64("chain.step.result", running))
		stepSpan.SetStatus(codes.Ok, "")
		stepSpan.End()

		logger.Info("chain step completed",
			zap.Int("step", i),
			zap.String("operation", step.Op),
			zap.Float64("input", prev),
			zap.Float64("value", step.Value),
			zap.Float64("result", running),
			zap.Float64("duration_ms", stepElapsed),
		)

		results = append(results, ChainResult{
			Op:     step.Op,
			Value:  step.Value,
			Result: running,
		})
	}

	resultGauge.Record(ctx, running, metric.WithAttributes(attribute.String("operation", "chain")))

	span.AddEvent("chain.complete", trace.WithAttributes(
		attribute.Float64("final_result", running),
		attribute.Int("total_steps", len(req.Steps)),
	))
	span.SetAttributes(attribute.Float64("chain.result", running))
	span.SetStatus(codes.Ok, "")

	logger.Info("chained calculation completed",
		zap.Float64("initial", req.Initial),
		zap.Float64("result", running),
		zap.Int("steps", len(req.Steps)),
		zap.String("request_id", requestID),
	)

	handlers.WriteJSON(w, http.StatusOK, ChainResponse{
		Initial: req.Initial,
		Steps:   results,
		Result:  running,
		Display: calculator.FormatNumber(running),
	})
}
