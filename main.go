package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"pcapscope/internal/config"
	"pcapscope/internal/engine"
	"pcapscope/internal/export"
	"pcapscope/internal/flow"
	"pcapscope/internal/handlers"
	"pcapscope/internal/models"
)

func main() {
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	configPath := flag.String("config", "", "path to YAML config file")
	file := flag.String("file", "", "parse a capture file, print its packets and exit")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Config error: %v", err)
		}
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	opts := engine.Options{
		Timing:          cfg.Parser.Timing,
		MaxStreamBuffer: cfg.Parser.MaxStreamBuffer,
	}

	if *file != "" {
		if err := dumpFile(os.Stdout, *file, opts); err != nil {
			log.Fatalf("Parse error: %v", err)
		}
		return
	}

	sinks, err := export.Open(cfg.Export)
	if err != nil {
		log.Fatalf("Export error: %v", err)
	}
	eng := engine.New(engine.Config{
		Parse:       opts,
		PacketBatch: cfg.Server.PacketBatch,
		Sinks:       sinks,
	})
	defer eng.Close()

	r := mux.NewRouter()
	handlers.RegisterRoutes(r, eng, handlers.Options{
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		StaticDir:      cfg.Server.StaticDir,
		ClientBacklog:  cfg.Server.ClientBacklog,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("pcapscope listening on http://localhost%s", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// dumpFile prints one line per packet followed by the stream table.
func dumpFile(w io.Writer, path string, opts engine.Options) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read capture: %w", err)
	}
	res, err := engine.Parse(buf, opts)
	if err != nil {
		return err
	}

	for _, p := range res.Packets {
		fmt.Fprintln(w, packetLine(p, res.Stats.FirstTimestamp))
	}
	if len(res.Streams) > 0 {
		fmt.Fprintln(w)
		for id := 1; id <= len(res.Streams); id++ {
			if st, ok := res.Streams[id]; ok {
				fmt.Fprintln(w, flow.Describe(st))
			}
		}
	}
	fmt.Fprintf(w, "\n%s: %d packets, %d bytes, %.6fs\n",
		res.Format, res.Stats.PacketCount, res.Stats.TotalBytes, res.Stats.Duration)
	if res.Timing != nil {
		fmt.Fprintf(w, "parsed in %.3fms\n", res.Timing.Total)
	}
	return nil
}

func packetLine(p *models.Packet, first float64) string {
	return fmt.Sprintf("%5d %11.6f %-22s %-22s %-8s %4d %s",
		p.ID, p.Timestamp-first, p.Source, p.Destination, p.Protocol, p.CapturedLength, p.Info)
}
