// Package omf implements the OMF linked-data north emitter: it turns
// readings into the OSIsoft PI Server "linked data" JSON payload shape
// described in spec §4.F, tracking which assets, links, and containers
// have already been announced so each is sent exactly once per
// connection lifetime.
package omf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/charithmadhuranga/fledge/errors"
	"github.com/charithmadhuranga/fledge/types"
)

// Config configures the OMF emitter's HTTP transport and throttling.
type Config struct {
	Endpoint             string
	Headers              map[string]string
	Timeout              time.Duration
	RequestsPerSecond    float64
	Burst                int
	ConnectFailLogWindow time.Duration
}

// DefaultConfig returns reasonable OMF endpoint defaults.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:             endpoint,
		Timeout:              30 * time.Second,
		RequestsPerSecond:    20,
		Burst:                5,
		ConnectFailLogWindow: 5 * time.Minute,
	}
}

// Emitter is single-threaded per spec §5 ("the emitter is
// single-threaded... confined to the emitter instance"): the pending
// containers buffer and the sent-tracking maps are not safe for
// concurrent Process/FlushContainers calls from multiple goroutines.
type Emitter struct {
	cfg          Config
	connectionID string
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
	sink         errors.ErrorSink

	assetSent     map[string]bool
	containerSent map[string]string // link -> base type
	linkSent      map[string]bool
	containers    strings.Builder

	failMu      sync.Mutex
	failLastLog time.Time
}

// New builds an Emitter.
func New(cfg Config, logger *slog.Logger, sink errors.ErrorSink) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = errors.DiscardSink
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Emitter{
		cfg:           cfg,
		connectionID:  uuid.NewString(),
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:        logger,
		sink:          sink,
		assetSent:     make(map[string]bool),
		containerSent: make(map[string]string),
		linkSent:      make(map[string]bool),
	}
}

// InvalidateSchema clears every memoization table, forcing every
// asset/link/container to be re-announced on the next batch. Used when
// the north-side connection is recycled (e.g. after a reconnect) and
// the receiving PI Server may have lost its own state. A fresh
// connection ID is assigned so subsequent log lines can be correlated
// to this new connection lifetime rather than the one that preceded it.
func (e *Emitter) InvalidateSchema() {
	e.assetSent = make(map[string]bool)
	e.containerSent = make(map[string]string)
	e.linkSent = make(map[string]bool)
	e.containers.Reset()
	e.connectionID = uuid.NewString()
}

// ProcessReading builds the OMF payload fragment for one reading,
// tracking asset/link/container announcements across calls, per spec
// §4.F and the original OMFLinkedData::processReading.
func (e *Emitter) ProcessReading(r *types.Reading, hints map[string]string) (string, error) {
	assetName := r.AssetCode
	if tag, ok := hints[types.OMFTagNameHint]; ok && tag != "" {
		assetName = tag
	}
	if tag, ok := hints[types.OMFTagHint]; ok && tag != "" {
		assetName = tag
	}

	var out strings.Builder
	needDelim := false

	if !e.assetSent[assetName] {
		out.WriteString(fmt.Sprintf(
			`{ "typeid":"FledgeAsset", "values":[ { "AssetId":"%s","Name":"%s"} ] }`,
			assetName, assetName))
		needDelim = true
		e.assetSent[assetName] = true
	}

	for _, dp := range r.Datapoints {
		if dp.Name == types.OMFHintDatapoint {
			continue
		}
		if !dp.Value.IsOMFSupported() {
			continue
		}

		link := assetName + "_" + dp.Name
		baseType, known := e.containerSent[link]
		if !known {
			baseType = dp.Value.OMFBaseType()
			e.containerSent[link] = baseType
			e.appendContainer(link, dp.Name, baseType)
		}
		if baseType == "" {
			continue
		}

		if needDelim {
			out.WriteString(",")
		}
		needDelim = true

		if !e.linkSent[link] {
			out.WriteString(fmt.Sprintf(
				`{ "typeid":"__Link","values":[ { "source" : {"typeid": "FledgeAsset","index":"%s" }, "target" : {"containerid" : "%s" } } ] },`,
				assetName, link))
			e.linkSent[link] = true
		}

		out.WriteString(fmt.Sprintf(
			`{"containerid": "%s", "values": [{"%s": %s, "Time": "%sZ"}] }`,
			link, baseType, dp.Value.String(), r.AssetDateUserTime()))
	}

	return out.String(), nil
}

// appendContainer records a container definition for the next
// FlushContainers call, per the original sendContainer.
func (e *Emitter) appendContainer(link, dpName, baseType string) {
	if e.containers.Len() > 0 {
		e.containers.WriteString(",")
	}
	e.containers.WriteString(fmt.Sprintf(
		`{ "id" : "%s", "typeid" : "%s", "name" : "%s", "datasource" : "Fledge" }`,
		link, baseType, dpName))
}

// FlushContainers POSTs any pending container definitions to the OMF
// endpoint's container resource. Returns (false, nil) for the "bad
// request" case (warn-and-continue, not fatal-for-batch, per spec
// §7's TransportError/BadRequest split); other transport failures are
// returned as an error.
func (e *Emitter) FlushContainers(ctx context.Context) (bool, error) {
	if e.containers.Len() == 0 {
		return true, nil
	}
	payload := "[" + e.containers.String() + "]"
	e.containers.Reset()

	return e.post(ctx, "container", payload)
}

// SendBatch POSTs a batch of already-built OMF record fragments as a
// single JSON array to the OMF data endpoint.
func (e *Emitter) SendBatch(ctx context.Context, fragments []string) (bool, error) {
	if len(fragments) == 0 {
		return true, nil
	}
	payload := "[" + strings.Join(fragments, ",") + "]"
	return e.post(ctx, "data", payload)
}

func (e *Emitter) post(ctx context.Context, messageType, payload string) (bool, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return false, err
	}

	requestID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader([]byte(payload)))
	if err != nil {
		return false, errors.NewTransportError(e.cfg.Endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("messagetype", messageType)
	req.Header.Set("X-Request-Id", requestID)
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logConnFailure(err)
		wrapped := errors.NewTransportError(e.cfg.Endpoint, err)
		e.sink.Report(wrapped)
		return false, wrapped
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusBadRequest {
		e.logger.Warn("OMF endpoint rejected batch",
			"endpoint", e.cfg.Endpoint, "connection_id", e.connectionID, "request_id", requestID, "body", string(body))
		bad := errors.NewBadRequestError(e.cfg.Endpoint, resp.StatusCode, string(body))
		e.sink.Report(bad)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		wrapped := errors.NewTransportError(e.cfg.Endpoint, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
		e.sink.Report(wrapped)
		return false, wrapped
	}

	return true, nil
}

func (e *Emitter) logConnFailure(err error) {
	e.failMu.Lock()
	defer e.failMu.Unlock()

	window := e.cfg.ConnectFailLogWindow
	if window <= 0 {
		window = 5 * time.Minute
	}

	now := time.Now()
	if e.failLastLog.IsZero() || now.Sub(e.failLastLog) >= window {
		e.logger.Error("OMF endpoint connection failure", "error", err)
		e.failLastLog = now
	}
}
