package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile   string
	LayoutFile   string
	OutputFile   string
	Format       string
	CheckLayout  bool
	RenderLayout bool
	ServiceMode  bool
	HttpMode     bool
	HttpPort     int
}

// Application is the set of run modes main dispatches to
type Application interface {
	ApplyOptions(opts AppOptions)
	RunCheckLayout()
	RunRenderLayout()
	RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("tudodrift", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.LayoutFile, "layout", "", "Marker layout JSON (overrides the config file's layout)")
	fs.BoolVar(&opts.CheckLayout, "check-layout", false, "Load the marker layout, print it and exit")
	fs.BoolVar(&opts.RenderLayout, "render-layout", false, "Render the marker layout and exit")
	fs.StringVar(&opts.OutputFile, "output", "layout.svg", "Output file for --render-layout")
	fs.StringVar(&opts.Format, "format", "svg", "Render format: svg or png")
	fs.BoolVar(&opts.ServiceMode, "service", false, "Run the drift correction service over MQTT")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve status and layout endpoints while running the service")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintf(out, "tudodrift version: %s\n", Version)

	if opts.Format != "svg" && opts.Format != "png" {
		return fmt.Errorf("unknown --format %q (want svg or png)", opts.Format)
	}

	app.ApplyOptions(opts)

	switch {
	case opts.CheckLayout:
		app.RunCheckLayout()
	case opts.RenderLayout:
		app.RunRenderLayout()
	case opts.ServiceMode:
		app.RunService()
	default:
		fmt.Fprintln(out, "tudodrift: map->odom drift correction from fiducial markers")
		fmt.Fprintln(out, "Use --check-layout to validate the marker layout")
		fmt.Fprintln(out, "Use --render-layout [--format png] [--output FILE] to draw it")
		fmt.Fprintln(out, "Use --service [--http] to run the correction service")
	}
	return nil
}
