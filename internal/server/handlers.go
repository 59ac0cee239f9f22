package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jeongseonghan/psklink/internal/bench"
	"github.com/jeongseonghan/psklink/internal/bitstream"
	"github.com/jeongseonghan/psklink/internal/checksum"
	"github.com/jeongseonghan/psklink/internal/config"
	"github.com/jeongseonghan/psklink/internal/link"
	"github.com/jeongseonghan/psklink/internal/modem"
)

const (
	maxUploadBytes = 10 << 20
	// Waveforms are held in memory at full sample rate, so transmissions are capped.
	maxTransmitBits = 16384
	maxSendBytes    = maxTransmitBits/8 - checksum.TrailerLen
	benchBitCount   = 256
)

// Player plays a waveform, blocking until it finishes or ctx is done.
type Player interface {
	Play(ctx context.Context, samples []float64) error
}

// Options configures the API handlers.
type Options struct {
	Config   *config.Config
	Registry prometheus.Registerer
	Logger   *log.Logger
	// Player, if set, lets clients request playback of transmitted waveforms.
	Player Player
}

// Handlers holds the HTTP API handlers.
type Handlers struct {
	cfg          *config.Config
	wsHub        *WSHub
	logger       *log.Logger
	player       Player
	metrics      *linkMetrics
	benchMetrics *bench.Metrics

	mu        sync.Mutex
	links     map[link.NoiseDomain]*link.Link
	lastBench *BenchPayload

	benchRunning atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewHandlers creates new API handlers.
func NewHandlers(opts Options) *Handlers {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	hub := NewWSHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Handlers{
		cfg:          cfg,
		wsHub:        hub,
		logger:       logger,
		player:       opts.Player,
		metrics:      newLinkMetrics(reg, hub),
		benchMetrics: bench.NewMetrics(reg),
		links:        make(map[link.NoiseDomain]*link.Link),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close stops background work and disconnects websocket clients.
func (h *Handlers) Close() {
	h.cancel()
	h.wg.Wait()
	h.wsHub.Close()
}

// TransmitRequest is the body of POST /api/transmit.
type TransmitRequest struct {
	Bits       string   `json:"bits"`
	Text       string   `json:"text"`
	Modulation string   `json:"modulation"`
	Noise      *float64 `json:"noise"`
	Domain     string   `json:"domain"`
	Play       bool     `json:"play"`
}

// TransmitResponse is the result of one transmission.
type TransmitResponse struct {
	Modulation string  `json:"modulation"`
	Domain     string  `json:"domain"`
	Noise      float64 `json:"noise"`
	Sent       string  `json:"sent"`
	Received   string  `json:"received"`
	Text       string  `json:"text,omitempty"`
	BitErrors  int     `json:"bitErrors"`
	BER        float64 `json:"ber"`
	Padding    int     `json:"padding"`
	Symbols    int     `json:"symbols"`
	Degenerate int     `json:"degenerate"`
}

// SendResponse reports a file carried over the link.
type SendResponse struct {
	Filename  string          `json:"filename"`
	Size      int             `json:"size"`
	BitErrors int             `json:"bitErrors"`
	BER       float64         `json:"ber"`
	Intact    bool            `json:"intact"`
	CRC       checksum.Report `json:"crc"`
	Download  string          `json:"download"`
}

// BenchRequest overrides the configured sweep. Zero values keep the configuration.
type BenchRequest struct {
	Modulation string   `json:"modulation"`
	Domain     string   `json:"domain"`
	Start      *float64 `json:"start"`
	End        *float64 `json:"end"`
	Step       *float64 `json:"step"`
	Trials     int      `json:"trials"`
	Workers    int      `json:"workers"`
	Bits       string   `json:"bits"`
	Text       string   `json:"text"`
}

// BenchPayload is broadcast when a sweep finishes.
type BenchPayload struct {
	Order  string        `json:"order"`
	Domain string        `json:"domain"`
	Bits   int           `json:"bits"`
	Points []bench.Point `json:"points"`
}

// ProgressPayload represents a progress update.
type ProgressPayload struct {
	Status   string      `json:"status"`
	Progress float64     `json:"progress"` // 0.0 to 1.0
	Done     int         `json:"done"`
	Total    int         `json:"total"`
	Point    bench.Point `json:"point"`
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "err", err)
		return
	}

	h.wsHub.AddClient(conn)

	// Read until the client goes away; clients send no commands.
	go func() {
		defer h.wsHub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// HandleTransmit runs bits through the link and publishes the waveform and
// constellation to websocket clients.
func (h *Handlers) HandleTransmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TransmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Parse request: %v", err), http.StatusBadRequest)
		return
	}

	var bits []byte
	switch {
	case req.Bits != "":
		var err error
		if bits, err = bitstream.ParseBits(req.Bits); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	case req.Text != "":
		bits = bitstream.BytesToBits([]byte(req.Text))
	default:
		http.Error(w, "bits or text required", http.StatusBadRequest)
		return
	}
	if len(bits) > maxTransmitBits {
		http.Error(w, fmt.Sprintf("at most %d bits per transmission", maxTransmitBits), http.StatusRequestEntityTooLarge)
		return
	}

	order, domain, noise, err := h.linkParams(req.Modulation, req.Domain, req.Noise)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.transmit(bits, order, domain, noise)
	if err != nil {
		h.logger.Error("transmit failed", "err", err)
		http.Error(w, fmt.Sprintf("Transmit: %v", err), http.StatusInternalServerError)
		return
	}
	h.publish(res)

	if req.Play {
		h.play(res.Transmitted.Samples)
	}

	resp := TransmitResponse{
		Modulation: order.String(),
		Domain:     string(domain),
		Noise:      noise,
		Sent:       bitstream.FormatBits(res.Sent),
		Received:   bitstream.FormatBits(res.Received),
		BitErrors:  res.BitErrors,
		BER:        res.BER(),
		Padding:    res.Transmitted.Padding,
		Symbols:    res.Transmitted.NumSymbols(),
		Degenerate: res.Reception.Degenerate,
	}
	if req.Bits == "" {
		resp.Text = string(bitstream.BitsToBytes(res.Received))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUpload handles file upload for sending.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("Parse form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("Get file: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	name, ok := safeName(header.Filename)
	if !ok {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	if err := os.MkdirAll(h.cfg.Server.UploadDir, 0755); err != nil {
		http.Error(w, fmt.Sprintf("Create directory: %v", err), http.StatusInternalServerError)
		return
	}
	outFile, err := os.Create(filepath.Join(h.cfg.Server.UploadDir, name))
	if err != nil {
		http.Error(w, fmt.Sprintf("Create file: %v", err), http.StatusInternalServerError)
		return
	}
	defer outFile.Close()

	written, err := io.Copy(outFile, file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Save file: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Info("file uploaded", "name", name, "bytes", written)
	h.wsHub.BroadcastLog("info", fmt.Sprintf("File uploaded: %s (%d bytes)", name, written))

	writeJSON(w, http.StatusOK, map[string]any{
		"filename": name,
		"size":     written,
		"status":   "uploaded",
	})
}

// HandleSend carries an uploaded file over the link with a CRC-32 trailer and
// stores what arrives in the receive directory.
func (h *Handlers) HandleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Filename   string   `json:"filename"`
		Modulation string   `json:"modulation"`
		Noise      *float64 `json:"noise"`
		Domain     string   `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Parse request: %v", err), http.StatusBadRequest)
		return
	}

	name, ok := safeName(req.Filename)
	if !ok {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	data, err := os.ReadFile(filepath.Join(h.cfg.Server.UploadDir, name))
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, fmt.Sprintf("Read file: %v", err), http.StatusInternalServerError)
		return
	}
	if len(data) > maxSendBytes {
		http.Error(w, fmt.Sprintf("at most %d bytes per file", maxSendBytes), http.StatusRequestEntityTooLarge)
		return
	}

	order, domain, noise, err := h.linkParams(req.Modulation, req.Domain, req.Noise)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.wsHub.BroadcastStatus("transferring", fmt.Sprintf("Sending %s with %s", name, order))
	res, err := h.transmit(bitstream.BytesToBits(checksum.Append(data)), order, domain, noise)
	if err != nil {
		h.wsHub.BroadcastStatus("error", fmt.Sprintf("Send failed: %v", err))
		http.Error(w, fmt.Sprintf("Transmit: %v", err), http.StatusInternalServerError)
		return
	}
	h.publish(res)

	received, intact := checksum.Verify(bitstream.BitsToBytes(res.Received))
	if err := os.MkdirAll(h.cfg.Server.ReceiveDir, 0755); err != nil {
		http.Error(w, fmt.Sprintf("Create directory: %v", err), http.StatusInternalServerError)
		return
	}
	if err := os.WriteFile(filepath.Join(h.cfg.Server.ReceiveDir, name), received, 0644); err != nil {
		http.Error(w, fmt.Sprintf("Write file: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Info("file sent", "name", name, "bytes", len(data), "order", order, "errors", res.BitErrors, "intact", intact)
	if intact {
		h.wsHub.BroadcastStatus("completed", fmt.Sprintf("File received intact: %s (%d bytes)", name, len(received)))
	} else {
		h.wsHub.BroadcastStatus("completed", fmt.Sprintf("File received with errors: %s (%d bit errors)", name, res.BitErrors))
	}

	writeJSON(w, http.StatusOK, SendResponse{
		Filename:  name,
		Size:      len(data),
		BitErrors: res.BitErrors,
		BER:       res.BER(),
		Intact:    intact,
		CRC:       checksum.Compare(data, received),
		Download:  "/api/download/" + name,
	})
}

// HandleBench starts a noise sweep in the background. Results arrive over the
// websocket as progress and bench messages.
func (h *Handlers) HandleBench(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BenchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("Parse request: %v", err), http.StatusBadRequest)
		return
	}

	sweep, bits, err := h.benchParams(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	levels, err := sweep.Levels()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.benchRunning.CompareAndSwap(false, true) {
		http.Error(w, "A benchmark is already running", http.StatusConflict)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.benchRunning.Store(false)
		h.runBench(sweep, bits)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "running",
		"levels": len(levels),
		"order":  sweep.Order.String(),
	})
}

func (h *Handlers) runBench(sweep bench.Sweep, bits []byte) {
	sweep.Metrics = h.benchMetrics
	sweep.Logger = h.logger
	sweep.Progress = func(done, total int, p bench.Point) {
		h.wsHub.Broadcast(WSMessage{
			Type: "progress",
			Payload: ProgressPayload{
				Status:   "benchmarking",
				Progress: float64(done) / float64(total),
				Done:     done,
				Total:    total,
				Point:    p,
			},
		})
	}

	h.wsHub.BroadcastStatus("benchmarking", fmt.Sprintf("Sweeping %s noise %.3g..%.3g", sweep.Order, sweep.Start, sweep.End))
	points, err := bench.Run(h.ctx, bits, sweep)
	if err != nil {
		h.logger.Error("benchmark failed", "order", sweep.Order, "err", err)
		h.wsHub.BroadcastStatus("error", fmt.Sprintf("Benchmark failed: %v", err))
		return
	}

	payload := &BenchPayload{
		Order:  sweep.Order.String(),
		Domain: string(sweep.Domain),
		Bits:   len(bits),
		Points: points,
	}
	h.mu.Lock()
	h.lastBench = payload
	h.mu.Unlock()

	h.wsHub.Broadcast(WSMessage{Type: "bench", Payload: payload})
	h.wsHub.BroadcastStatus("completed", fmt.Sprintf("Benchmark finished: %d levels", len(points)))
}

// HandleStatus returns the link configuration and background activity.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := "idle"
	if h.benchRunning.Load() {
		status = "benchmarking"
	}

	orders := make([]string, len(modem.Orders))
	for i, o := range modem.Orders {
		orders[i] = o.String()
	}

	h.mu.Lock()
	lastBench := h.lastBench
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"clients":   h.wsHub.Count(),
		"link":      h.cfg.Link,
		"order":     h.cfg.Order.String(),
		"domain":    h.cfg.Noise.Domain,
		"noise":     h.cfg.Noise.Strength,
		"orders":    orders,
		"playback":  h.player != nil,
		"lastBench": lastBench,
	})
}

// HandleDownload serves received files for download.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	filename, ok := safeName(strings.TrimPrefix(r.URL.Path, "/api/download/"))
	if !ok {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return
	}

	filePath := filepath.Join(h.cfg.Server.ReceiveDir, filename)
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, filePath)
}

func (h *Handlers) linkParams(modulation, domainName string, noise *float64) (modem.Order, link.NoiseDomain, float64, error) {
	order := h.cfg.Order
	if modulation != "" {
		var err error
		if order, err = modem.ParseOrder(modulation); err != nil {
			return 0, "", 0, err
		}
	}
	domain := h.cfg.Noise.Domain
	if domainName != "" {
		var err error
		if domain, err = link.ParseNoiseDomain(domainName); err != nil {
			return 0, "", 0, err
		}
	}
	strength := h.cfg.Noise.Strength
	if noise != nil {
		if !(*noise >= 0) || math.IsInf(*noise, 1) {
			return 0, "", 0, fmt.Errorf("noise must be finite and non-negative, got %v", *noise)
		}
		strength = *noise
	}
	return order, domain, strength, nil
}

func (h *Handlers) benchParams(req BenchRequest) (bench.Sweep, []byte, error) {
	sweep := h.cfg.Sweep()
	var err error
	if sweep.Order, sweep.Domain, _, err = h.linkParams(req.Modulation, req.Domain, nil); err != nil {
		return sweep, nil, err
	}
	if req.Start != nil {
		sweep.Start = *req.Start
	}
	if req.End != nil {
		sweep.End = *req.End
	}
	if req.Step != nil {
		sweep.Step = *req.Step
	}
	if req.Trials != 0 {
		sweep.Trials = req.Trials
	}
	if req.Workers != 0 {
		sweep.Workers = req.Workers
	}
	if sweep.Trials < 1 || sweep.Workers < 0 {
		return sweep, nil, errors.New("trials must be positive and workers non-negative")
	}

	var bits []byte
	switch {
	case req.Bits != "":
		if bits, err = bitstream.ParseBits(req.Bits); err != nil {
			return sweep, nil, err
		}
	case req.Text != "":
		bits = bitstream.BytesToBits([]byte(req.Text))
	default:
		r := rand.New(rand.NewPCG(sweep.Seed, sweep.Seed+1))
		bits = make([]byte, benchBitCount)
		for i := range bits {
			bits[i] = byte(r.IntN(2))
		}
	}
	if len(bits) == 0 || len(bits) > maxTransmitBits {
		return sweep, nil, fmt.Errorf("between 1 and %d bits required", maxTransmitBits)
	}
	return sweep, bits, nil
}

func (h *Handlers) transmit(bits []byte, order modem.Order, domain link.NoiseDomain, noise float64) (*link.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.links[domain]
	if !ok {
		var err error
		l, err = link.New(h.cfg.Link, link.Options{
			Domain: domain,
			Seed:   h.cfg.Noise.Seed,
			Logger: h.logger,
		})
		if err != nil {
			return nil, err
		}
		h.links[domain] = l
	}

	res, err := l.Transmit(bits, order, noise)
	if err != nil {
		return nil, err
	}
	h.metrics.observe(domain, res)
	return res, nil
}

func (h *Handlers) publish(res *link.Result) {
	h.wsHub.Broadcast(WSMessage{Type: "signal", Payload: signalPayload(res)})
	cp, err := constellationPayload(res)
	if err != nil {
		h.logger.Error("constellation payload", "err", err)
		return
	}
	h.wsHub.Broadcast(WSMessage{Type: "constellation", Payload: cp})
}

func (h *Handlers) play(samples []float64) {
	if h.player == nil {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.player.Play(h.ctx, samples); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Warn("playback failed", "err", err)
		}
	}()
}

// safeName reduces a client-supplied filename to its base name.
func safeName(name string) (string, bool) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "", false
	}
	return base, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
