package loki

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Logger receives the pusher's own delivery failures. They must not loop
// back through the loki hook, or a dead endpoint would feed itself.
type Logger interface {
	Error(msg string, args ...any)
}

type Config struct {

	// Url of the loki push endpoint, e.g. http://loki:3100/loki/api/v1/push
	Url string `validate:"required"`

	// BatchMaxSize is the number of buffered lines that forces a push.
	// It is also the capacity of the intake buffer: once delivery stalls
	// and the buffer fills, further entries are dropped rather than
	// blocking the caller.
	BatchMaxSize int `validate:"gte=1"`

	// BatchMaxWait flushes a partial batch after this long
	BatchMaxWait time.Duration `validate:"gte=1"`

	// Labels attached to every stream. A "service" label is added when
	// absent so orchestrator logs stay queryable by service.
	Labels map[string]string

	// TenantKey/TenantValue set a tenant header for multi-tenant Loki.
	// Left empty, no tenant header is sent.
	TenantKey   string
	TenantValue string

	// Username/Password enable basic auth when both are set
	Username string
	Password string
}

const defaultServiceLabel = "autopilot"

func (cfg *Config) setDefaults() {
	if cfg.BatchMaxSize == 0 {
		cfg.BatchMaxSize = 500
	}
	if cfg.BatchMaxWait == 0 {
		cfg.BatchMaxWait = 3 * time.Second
	}
	if cfg.Labels == nil {
		cfg.Labels = map[string]string{}
	}
	if _, ok := cfg.Labels["service"]; !ok {
		cfg.Labels["service"] = defaultServiceLabel
	}
}

type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"msg"`
	Caller  string `json:"caller"`
}

// Pusher batches log entries and ships them to Loki in gzipped pushes.
type Pusher struct {
	config    *Config
	ctx       context.Context
	cancel    context.CancelFunc
	client    *http.Client
	quit      chan struct{}
	entries   chan LogEntry
	waitGroup sync.WaitGroup
	batch     []logLine
	logger    Logger
}

type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values []logLine         `json:"values"`
}

// logLine is Loki's [timestamp, line] value pair
type logLine []string

func New(ctx context.Context, cfg Config, logger Logger) (*Pusher, error) {

	cfg.setDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pusher{
		config:  &cfg,
		ctx:     ctx,
		cancel:  cancel,
		client:  &http.Client{},
		quit:    make(chan struct{}),
		entries: make(chan LogEntry, cfg.BatchMaxSize),
		batch:   make([]logLine, 0, cfg.BatchMaxSize),
		logger:  logger,
	}

	p.waitGroup.Add(1)
	go p.run()
	return p, nil
}

// Push buffers one entry. When the buffer is full the entry is dropped:
// log delivery never blocks the code doing the logging.
func (p *Pusher) Push(e LogEntry) error {
	select {
	case p.entries <- e:
		return nil
	default:
		return fmt.Errorf("loki intake buffer is full, entry dropped")
	}
}

// Stop flushes what is buffered and shuts the pusher down.
func (p *Pusher) Stop() {
	close(p.quit)
	p.waitGroup.Wait()
	p.cancel()
}

func (p *Pusher) run() {
	ticker := time.NewTicker(p.config.BatchMaxWait)
	defer ticker.Stop()

	flush := func() {
		if err := p.send(); err != nil {
			p.logger.Error("failed to push logs to loki", "error", err)
		}
		p.batch = p.batch[:0]
	}

	defer func() {
		for {
			// drain entries accepted before Stop
			select {
			case entry := <-p.entries:
				p.batch = append(p.batch, encodeEntry(entry))
				continue
			default:
			}
			break
		}
		if len(p.batch) > 0 {
			flush()
		}
		p.waitGroup.Done()
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.quit:
			return
		case entry := <-p.entries:
			p.batch = append(p.batch, encodeEntry(entry))
			if len(p.batch) >= p.config.BatchMaxSize {
				flush()
			}
		case <-ticker.C:
			if len(p.batch) > 0 {
				flush()
			}
		}
	}
}

func encodeEntry(entry LogEntry) logLine {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	return logLine{strconv.FormatInt(time.Now().UnixNano(), 10), string(encoded)}
}

func (p *Pusher) send() error {

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	payload := pushRequest{Streams: []stream{{
		Stream: p.config.Labels,
		Values: p.batch,
	}}}
	if err := json.NewEncoder(gz).Encode(payload); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(p.ctx, http.MethodPost, p.config.Url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	if p.config.TenantKey != "" {
		req.Header.Set(p.config.TenantKey, p.config.TenantValue)
	}
	if p.config.Username != "" && p.config.Password != "" {
		req.SetBasicAuth(p.config.Username, p.config.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected response code from loki: %s, body: %s", resp.Status, string(body))
	}

	return nil
}
