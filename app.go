package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kwv/tudodrift/drift"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *drift.Config
	Layout     drift.MarkerLayout
	Buffer     *drift.TransformBuffer
	Localizer  *drift.Localizer
	Tracker    *drift.StatusTracker
	Publisher  *drift.CorrectionPublisher
	MQTTClient *drift.MQTTClient
	History    *drift.HistoryStore

	// CLI Flags (effectively dependencies)
	ConfigFile string
	LayoutFile string
	OutputFile string
	Format     string
	HttpPort   int
	HttpMode   bool

	out io.Writer
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Tracker: drift.NewStatusTracker(),
		out:     os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.LayoutFile = opts.LayoutFile
	a.OutputFile = opts.OutputFile
	a.Format = opts.Format
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
}

// RunCheckLayout loads the marker layout and prints it
func (a *App) RunCheckLayout() {
	layout, err := a.loadLayout()
	if err != nil {
		log.Fatalf("Failed to load marker layout: %v", err)
	}
	printLayout(a.out, layout)
}

// RunRenderLayout draws the marker layout to OutputFile
func (a *App) RunRenderLayout() {
	layout, err := a.loadLayout()
	if err != nil {
		log.Fatalf("Failed to load marker layout: %v", err)
	}

	outputPath := a.OutputFile
	if filepath.Ext(outputPath) == "" {
		outputPath += "." + a.Format
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		log.Fatalf("Error creating output file %s: %v", outputPath, err)
	}
	defer func() {
		if err := outFile.Close(); err != nil {
			log.Printf("Warning: error closing output file %s: %v", outputPath, err)
		}
	}()

	if err := renderLayout(outFile, layout, nil, a.Format); err != nil {
		log.Fatalf("Error rendering layout: %v", err)
	}
	fmt.Fprintf(a.out, "Created %s: %s (%d markers)\n", a.Format, outputPath, len(layout))
}

// RunService starts the MQTT correction service and, optionally, HTTP
func (a *App) RunService() {
	fmt.Fprintln(a.out, "Starting tudodrift service...")

	// 1. Load config.yaml and the marker layout (both required)
	if err := a.loadInputs(); err != nil {
		log.Fatalf("Failed to load inputs: %v", err)
	}
	log.Printf("Loaded config from %s, %d markers from %s", a.ConfigFile, len(a.Layout), a.Config.Layout)

	// 2. Build the pipeline; the publisher gets its client once MQTT is up
	if err := a.buildPipeline(nil); err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer a.closeHistory()

	// 3. Start MQTT (required)
	mqttClient, err := drift.InitMQTT(a.Config, a.handleObservation, a.handleTransforms)
	if err != nil {
		log.Fatalf("Failed to initialize MQTT: %v", err)
	}
	if mqttClient == nil {
		log.Fatal("MQTT broker not configured in config.yaml")
	}
	a.MQTTClient = mqttClient
	a.Publisher.SetClient(mqttClient.GetClient())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start HTTP server if enabled
	var httpSrv *http.Server
	if a.HttpMode {
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.Tracker, a.History, a.Layout),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", httpSrv.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	a.printServiceInfo()

	// 5. Run the localizer until interrupted
	if err := a.Localizer.Run(ctx); err != nil {
		log.Printf("[LOCALIZER] Stopped with error: %v", err)
	}

	fmt.Fprintln(a.out, "\nShutting down service...")
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
		cancel()
	}
	a.MQTTClient.Disconnect()
	fmt.Fprintln(a.out, "Service stopped")
}

// loadInputs reads the config file and the marker layout it points at.
// LayoutFile, when set, takes precedence over the config's layout path.
func (a *App) loadInputs() error {
	config, err := drift.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("config %s: %w", a.ConfigFile, err)
	}
	if a.LayoutFile != "" {
		config.Layout = a.LayoutFile
	}
	a.Config = config

	layout, err := drift.LoadMarkerLayout(config.Layout)
	if err != nil {
		return err
	}
	if len(layout) == 0 {
		return fmt.Errorf("marker layout %s has no markers", config.Layout)
	}
	a.Layout = layout
	return nil
}

// loadLayout resolves the layout for the offline modes. The config file is
// only consulted when no --layout is given.
func (a *App) loadLayout() (drift.MarkerLayout, error) {
	path := a.LayoutFile
	if path == "" {
		config, err := drift.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("no --layout given and config unusable: %w", err)
		}
		path = config.Layout
	}
	return drift.LoadMarkerLayout(path)
}

// buildPipeline wires the transform buffer, publisher, history and localizer
// around an already loaded Config and Layout.
func (a *App) buildPipeline(client mqtt.Client) error {
	lc := a.Config.Localization

	a.Buffer = drift.NewTransformBuffer(lc.TransformCache.Std(), lc.TransformTolerance.Std())
	for _, st := range a.Config.StaticTransforms {
		if err := a.Buffer.SetTransform(st.Stamped(), true); err != nil {
			return fmt.Errorf("static transform %s -> %s: %w", st.Parent, st.Child, err)
		}
		log.Printf("[FRAMES] Static transform %s -> %s", st.Parent, st.Child)
	}

	a.Publisher = drift.NewPublisher(client, a.Config.MQTT.PublishPrefix)

	opts := []drift.LocalizerOption{drift.WithStatusTracker(a.Tracker)}
	if a.Config.History != "" {
		history, err := drift.OpenHistory(a.Config.History)
		if err != nil {
			return err
		}
		a.History = history
		opts = append(opts, drift.WithRecorder(history))
	}

	a.Localizer = drift.NewLocalizer(a.Config, a.Layout, a.Buffer, a.Publisher, opts...)
	return nil
}

func (a *App) closeHistory() {
	if a.History == nil {
		return
	}
	if err := a.History.Close(); err != nil {
		log.Printf("[HISTORY] Close error: %v", err)
	}
}

// handleObservation feeds detector output into the localizer's window
func (a *App) handleObservation(set drift.ObservationSet) {
	a.Localizer.Ingest(set)
}

// handleTransforms feeds dynamic transforms into the frame buffer
func (a *App) handleTransforms(tfs []drift.TransformStamped) {
	for _, tf := range tfs {
		if err := a.Buffer.SetTransform(tf, false); err != nil {
			log.Printf("[FRAMES] Rejected transform %s -> %s: %v", tf.Header.FrameID, tf.ChildFrameID, err)
		}
	}
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")

	fmt.Fprintln(a.out, "\nMQTT:")
	fmt.Fprintln(a.out, "  Subscribed topics:")
	fmt.Fprintf(a.out, "    - %s (marker detections)\n", a.Config.MQTT.MarkerTopic)
	if a.Config.MQTT.TransformTopic != "" {
		fmt.Fprintf(a.out, "    - %s (transforms)\n", a.Config.MQTT.TransformTopic)
	}
	fmt.Fprintf(a.out, "  Publishing %s -> %s to: %s\n", a.Config.Frames.Map, a.Config.Frames.Odom, a.Publisher.Topic())

	if a.HttpMode {
		fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.out, "  GET /health       - Health check")
		fmt.Fprintln(a.out, "  GET /status       - Localizer status")
		fmt.Fprintln(a.out, "  GET /correction   - Current map->odom correction")
		fmt.Fprintln(a.out, "  GET /history      - Recent published corrections")
		fmt.Fprintln(a.out, "  GET /layout.svg   - Marker layout with odom frame")
		fmt.Fprintln(a.out, "  GET /layout.png   - Marker layout with odom frame")
	}

	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}

// printLayout writes one line per marker, ordered by id
func printLayout(w io.Writer, layout drift.MarkerLayout) {
	ids := make([]int, 0, len(layout))
	for id := range layout {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Fprintf(w, "Marker layout: %d marker(s)\n", len(layout))
	for _, id := range ids {
		km := layout[id]
		fmt.Fprintf(w, "  %3d: pos(%.3f, %.3f, %.3f) rpy(%.1f°, %.1f°, %.1f°)\n",
			km.ID, km.Position.X, km.Position.Y, km.Position.Z, km.Roll, km.Pitch, km.Yaw)
	}
}

// renderLayout writes the layout in the requested format
func renderLayout(w io.Writer, layout drift.MarkerLayout, correction *drift.TransformStamped, format string) error {
	renderer := drift.NewLayoutRenderer(layout, correction)
	switch format {
	case "svg":
		return renderer.RenderToSVG(w)
	case "png":
		return renderer.RenderToPNG(w)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
