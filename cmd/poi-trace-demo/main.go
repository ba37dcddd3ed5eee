// Command poi-trace-demo walks a single agent run end to end through every
// core package: build a trace, finalize it, bundle and sign it, chunk it
// into a manifest, run the safety pipeline over it, derive an anchor entry,
// and optionally archive everything in Postgres. It is a thin illustration
// of how the packages wire together, not a service — no HTTP server is
// started, matching the core's "thin JSON-over-HTTP wrappers are an
// external collaborator" boundary. Grounded in the teacher's main.go
// startup-wiring shape (flag parsing, step-by-step logging, optional
// components degrading gracefully when unconfigured) narrowed from a
// long-running validator process to a one-shot CLI run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/poi-trace/core/pkg/anchor"
	"github.com/poi-trace/core/pkg/bundle"
	"github.com/poi-trace/core/pkg/config"
	"github.com/poi-trace/core/pkg/logging"
	"github.com/poi-trace/core/pkg/manifest"
	"github.com/poi-trace/core/pkg/metrics"
	"github.com/poi-trace/core/pkg/safety"
	"github.com/poi-trace/core/pkg/safety/detectors"
	"github.com/poi-trace/core/pkg/signature"
	"github.com/poi-trace/core/pkg/store"
	"github.com/poi-trace/core/pkg/trace"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a poi-trace YAML config file (defaults built in when omitted)")
		agentID    = flag.String("agent-id", "demo-agent", "agent id stamped on the demo run")
		outDir     = flag.String("out", "", "directory to write the manifest to (defaults to a temp dir)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poi-trace-demo: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(&logging.Config{
		Level:  parseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "poi-trace-demo: failed to build logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	collectors, err := metrics.NewCollectors(reg)
	if err != nil {
		logger.Warn("metrics disabled", logging.F("error", err.Error()))
		collectors = nil
	}

	run := recordDemoRun(cfg, *agentID, collectors)
	logger.Info("trace run created", logging.F("runId", run.ID))

	finalized, err := run.Finalize(ctx)
	if err != nil {
		logger.Error("finalize failed", logging.F("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("trace run finalized",
		logging.F("runId", finalized.ID),
		logging.F("rootHash", finalized.RootHash),
		logging.F("events", len(finalized.Events)),
		logging.F("spans", len(finalized.Spans)))

	b, err := bundle.New(finalized)
	if err != nil {
		logger.Error("bundle failed", logging.F("error", err.Error()))
		os.Exit(1)
	}

	signer, err := signature.NewEd25519Provider("poi-trace-demo", nil)
	if err != nil {
		logger.Error("signer init failed", logging.F("error", err.Error()))
		os.Exit(1)
	}
	signedBundle, err := bundle.Sign(b, signer)
	if err != nil {
		logger.Error("bundle signing failed", logging.F("error", err.Error()))
		os.Exit(1)
	}

	verification := bundle.Verify(signedBundle)
	sigOK, err := bundle.VerifySignature(signedBundle, signer)
	if err != nil {
		logger.Error("signature verification errored", logging.F("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("bundle verified",
		logging.F("valid", verification.Valid),
		logging.F("signatureValid", sigOK))

	m, signedBundle, err := manifest.Create(signedBundle, manifest.Options{ChunkSize: cfg.Bundle.DefaultChunkSize})
	if err != nil {
		logger.Error("manifest creation failed", logging.F("error", err.Error()))
		os.Exit(1)
	}

	dir := *outDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "poi-trace-demo-*")
		if err != nil {
			logger.Error("failed to create output dir", logging.F("error", err.Error()))
			os.Exit(1)
		}
	}
	chunkPayloads, err := buildChunkPayloads(signedBundle, m)
	if err != nil {
		logger.Error("building chunk payloads failed", logging.F("error", err.Error()))
		os.Exit(1)
	}
	if err := manifest.WriteDir(dir, m, chunkPayloads); err != nil {
		logger.Error("manifest write failed", logging.F("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("manifest written", logging.F("dir", dir), logging.F("chunks", m.TotalChunks))

	registry := buildRegistry(cfg)
	pipeline := safety.NewPipeline(registry)
	report, results, err := pipeline.Run(ctx, safety.Context{
		BaseTrace: finalized,
		Events:    finalized.Events,
		Spans:     finalized.Spans,
	}, safety.RunOptions{
		AgentID:          *agentID,
		BaseRootHash:     finalized.RootHash,
		BaseManifestHash: signedBundle.ManifestHash,
		ConfigFingerprint: safety.ConfigFingerprint{
			ThresholdPolicyID: cfg.Safety.ThresholdPolicyID,
		},
		Metrics: collectors,
	})
	if err != nil {
		logger.Error("safety pipeline failed", logging.F("error", err.Error()))
		os.Exit(1)
	}
	for _, r := range results {
		logger.Info("monitor result",
			logging.F("monitorId", r.MonitorID),
			logging.F("score", r.Score),
			logging.F("exceeded", r.Exceeded))
	}

	entry, err := anchor.CreateEntryFromBundle(signedBundle, anchor.Options{
		AgentID:           *agentID,
		IncludeMerkleRoot: cfg.Anchor.IncludeMerkleRoot,
	})
	if err != nil {
		logger.Error("anchor entry creation failed", logging.F("error", err.Error()))
		os.Exit(1)
	}
	anchorMetadata := anchor.BuildMetadata(entry)
	logger.Info("anchor entry built", logging.F("rootHash", entry.RootHash), logging.F("label", anchor.Label))

	if cfg.Store.DSN != "" {
		archiveToStore(ctx, logger, cfg, signedBundle, m, chunkPayloads, entry, report, results)
	} else {
		logger.Info("store.dsn not configured, skipping Postgres archival")
	}

	summary := map[string]interface{}{
		"runId":          finalized.ID,
		"rootHash":       finalized.RootHash,
		"manifestHash":   signedBundle.ManifestHash,
		"bundleValid":    verification.Valid,
		"signatureValid": sigOK,
		"safetyReportId": report.ID,
		"monitorCount":   len(results),
		"anchorLabel":    anchorMetadata[anchor.Label].Type,
		"manifestDir":    dir,
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}

// loadConfig reads cfg from path, or falls back to a minimal in-memory
// demo config when path is empty. That fallback is not identical to
// config.Load's defaults: it uses text logging, the "demo-default" threshold
// policy, a 1000-event cap, and enables every detector, and it leaves the
// Store section empty. A demo run has no reason to require a config file
// on disk.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return &config.Config{
		Trace: config.TraceConfig{
			MaxEventsPerRun:       1000,
			DefaultVisibility:     "private",
			CommandVisibility:     "public",
			ObservationVisibility: "public",
		},
		Bundle: config.BundleConfig{DefaultChunkSize: 65536},
		Safety: config.SafetyConfig{
			EnabledMonitors: []string{
				"statistical", "compressibility", "stego",
				"timing", "cot", "action", "eval-awareness",
			},
			ThresholdPolicyID: "demo-default",
		},
		Anchor:  config.AnchorConfig{Label: anchor.Label, IncludeMerkleRoot: true},
		Logging: config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// recordDemoRun builds a small but representative run: a command, its
// output, and a decision, each carrying a visibility taken from
// config.Load's TraceConfig (the output uses ObservationVisibility).
func recordDemoRun(cfg *config.Config, agentID string, collectors *metrics.Collectors) *trace.Run {
	run := trace.CreateTrace(trace.CreateOptions{
		AgentID:   agentID,
		MaxEvents: cfg.Trace.MaxEventsPerRun,
		Recorder:  collectors,
		Metadata:  map[string]interface{}{"source": "poi-trace-demo"},
	})

	span, _ := run.AddSpan(trace.SpanOptions{Name: "demo-task", Visibility: trace.VisibilityPublic})

	run.AddEvent(span.ID, trace.EventInput{
		Kind:       trace.KindCommand,
		Visibility: visibilityOf(cfg.Trace.CommandVisibility),
		Payload:    map[string]interface{}{"command": "ls -la /workspace"},
	})
	run.AddEvent(span.ID, trace.EventInput{
		Kind:       trace.KindOutput,
		Visibility: visibilityOf(cfg.Trace.ObservationVisibility),
		Payload:    map[string]interface{}{"output": "total 12\ndrwxr-xr-x  3 root root 4096 report.txt"},
	})
	run.AddEvent(span.ID, trace.EventInput{
		Kind:       trace.KindDecision,
		Visibility: visibilityOf(cfg.Trace.DefaultVisibility),
		Payload:    map[string]interface{}{"decision": "proceed with summarizing report.txt"},
	})

	run.CloseSpan(span.ID)
	return run
}

func visibilityOf(s string) trace.Visibility {
	switch s {
	case "public":
		return trace.VisibilityPublic
	case "secret":
		return trace.VisibilitySecret
	default:
		return trace.VisibilityPrivate
	}
}

// buildRegistry registers every detector named in cfg.Safety.EnabledMonitors,
// at cfg.Safety.Thresholds[id] when present, falling back to the
// per-detector default given in the factory table below.
func buildRegistry(cfg *config.Config) *safety.Registry {
	registry := safety.NewRegistry()
	threshold := func(id string, fallback float64) float64 {
		if t, ok := cfg.Safety.Thresholds[id]; ok {
			return t
		}
		return fallback
	}

	factory := map[string]func() safety.Detector{
		"statistical":     func() safety.Detector { return detectors.NewStatisticalDetector(threshold("statistical", 0.6)) },
		"compressibility": func() safety.Detector { return detectors.NewCompressibilityDetector(threshold("compressibility", 0.5)) },
		"stego":           func() safety.Detector { return detectors.NewStegoDetector(threshold("stego", 0.3)) },
		"timing": func() safety.Detector {
			d := detectors.NewTimingDetector(threshold("timing", 0.6))
			return d.WithAttestation(cfg.Safety.TimingAttested)
		},
		"cot":            func() safety.Detector { return detectors.NewCoTDetector(threshold("cot", 0.5)) },
		"action":         func() safety.Detector { return detectors.NewActionDetector(threshold("action", 0.1)) },
		"eval-awareness": func() safety.Detector { return detectors.NewEvalAwarenessDetector(threshold("eval-awareness", 0.4)) },
	}

	for _, id := range cfg.Safety.EnabledMonitors {
		build, ok := factory[id]
		if !ok {
			continue
		}
		registry.Register(build())
	}
	return registry
}

// buildChunkPayloads re-derives the raw bytes manifest.WriteDir writes under
// <dir>/chunks/NNNN.json from the chunk/span binding manifest.Create already
// computed. manifest.Create only returns the chunk index (spanIds, byte
// range, hash); an archival job still needs the actual span/event payloads
// to hand a chunk to object storage, so this reassembles them per chunk
// straight from the signed bundle's public view.
func buildChunkPayloads(b *bundle.Bundle, m *manifest.Manifest) ([][]byte, error) {
	eventByID := make(map[string]trace.Event)
	if b.PrivateRun != nil {
		for _, e := range b.PrivateRun.Events {
			eventByID[e.ID] = e
		}
	}
	spanByID := make(map[string]trace.Span, len(b.PublicView.PublicSpans))
	for _, s := range b.PublicView.PublicSpans {
		spanByID[s.ID] = s
	}

	payloads := make([][]byte, len(m.Chunks))
	for i, c := range m.Chunks {
		var spans []trace.Span
		var events []trace.Event
		for _, spanID := range c.SpanIDs {
			span, ok := spanByID[spanID]
			if !ok {
				continue
			}
			spans = append(spans, span)
			for _, eid := range span.EventIDs {
				if e, ok := eventByID[eid]; ok {
					events = append(events, e)
				}
			}
		}
		raw, err := json.Marshal(map[string]interface{}{"spans": spans, "events": events})
		if err != nil {
			return nil, err
		}
		payloads[i] = raw
	}
	return payloads, nil
}

func archiveToStore(
	ctx context.Context,
	logger *logging.Logger,
	cfg *config.Config,
	b *bundle.Bundle,
	m *manifest.Manifest,
	chunkPayloads [][]byte,
	entry *anchor.Entry,
	report *trace.Run,
	results []*safety.MonitorResult,
) {
	client, err := store.NewClient(cfg.Store, store.WithLogger(logger))
	if err != nil {
		logger.Warn("store connection failed, skipping archival", logging.F("error", err.Error()))
		return
	}
	defer client.Close()

	if err := client.MigrateUp(ctx); err != nil {
		logger.Warn("store migration failed", logging.F("error", err.Error()))
		return
	}
	if err := client.SaveBundle(ctx, b); err != nil {
		logger.Warn("save bundle failed", logging.F("error", err.Error()))
	}
	if err := client.SaveManifest(ctx, b.PublicView.RunID, m, chunkPayloads); err != nil {
		logger.Warn("save manifest failed", logging.F("error", err.Error()))
	}
	if err := client.SaveAnchorEntry(ctx, entry); err != nil {
		logger.Warn("save anchor entry failed", logging.F("error", err.Error()))
	}
	configHash, err := safety.ComputeConfigHash(safety.ConfigFingerprint{ThresholdPolicyID: cfg.Safety.ThresholdPolicyID})
	if err == nil {
		client.SaveSafetyReport(ctx, &store.SafetyReport{
			BaseRunID:  b.PublicView.RunID,
			Report:     report,
			Results:    results,
			ConfigHash: configHash,
		})
	}

	replay, err := anchor.VerifyAgainstStore(ctx, client, entry.RootHash)
	if err != nil {
		logger.Warn("anchor replay failed", logging.F("error", err.Error()))
		return
	}
	logger.Info("anchor replayed from store", logging.F("valid", replay.Valid), logging.F("reason", replay.Reason))
}
