// Package telemetry wires OpenTelemetry traces, metrics and logs for
// schemadoc.
//
// A documentation run is one trace: a schemadoc.run root span, one
// orchestrator.phase.<name> span per phase and one orchestrator.batch span
// per model batch. Instruments counts runs, batches and model calls and
// records their latency. Telemetry is disabled by default:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc          # or http/protobuf
//	  environment: staging
//	  resource_attributes:
//	    team: data-platform
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//	  logs:
//	    enabled: true         # grpc only
//
// Tests use NewTestTelemetry, which keeps spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	o, _ := orchestrator.New(src, model, nil, opts,
//	    orchestrator.WithTracer(tt.Tracer("test")),
//	    orchestrator.WithInstruments(tt.Instruments()))
//	...
//	tt.AssertDescendant(t, telemetry.BatchSpan, telemetry.RunSpan)
//	runs := tt.Sum(t, "schemadoc.runs")
package telemetry
