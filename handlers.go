package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/tudodrift/drift"
)

// newHTTPServer creates an HTTP server with all endpoints. history may be nil.
func newHTTPServer(tracker *drift.StatusTracker, history *drift.HistoryStore, layout drift.MarkerLayout) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := tracker.Snapshot()
		status := struct {
			Status        string             `json:"status"`
			Timestamp     time.Time          `json:"timestamp"`
			LastOutcome   drift.CycleOutcome `json:"lastOutcome,omitempty"`
			HasCorrection bool               `json:"hasCorrection"`
		}{
			Status:        "ok",
			Timestamp:     time.Now(),
			LastOutcome:   snap.LastOutcome,
			HasCorrection: snap.Correction != nil,
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, tracker.Snapshot())
	})

	mux.HandleFunc("/correction", func(w http.ResponseWriter, r *http.Request) {
		tf, ok := tracker.CurrentCorrection()
		if !ok {
			http.Error(w, "No correction published yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, tf)
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			http.Error(w, "History not configured", http.StatusNotFound)
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		records, err := history.Recent(limit)
		if err != nil {
			log.Printf("[HTTP] History query failed: %v", err)
			http.Error(w, "History query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
	})

	mux.HandleFunc("/layout.svg", func(w http.ResponseWriter, r *http.Request) {
		renderer := drift.NewLayoutRenderer(layout, currentCorrection(tracker))
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("Error encoding layout SVG: %v", err)
		}
	})

	mux.HandleFunc("/layout.png", func(w http.ResponseWriter, r *http.Request) {
		renderer := drift.NewLayoutRenderer(layout, currentCorrection(tracker))
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToPNG(w); err != nil {
			log.Printf("Error encoding layout PNG: %v", err)
		}
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

func currentCorrection(tracker *drift.StatusTracker) *drift.TransformStamped {
	tf, ok := tracker.CurrentCorrection()
	if !ok {
		return nil
	}
	return &tf
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}
