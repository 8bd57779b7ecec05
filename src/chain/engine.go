package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/eduverse-labs/eduverse/src/logging"
	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/eduverse-labs/eduverse/src/perf"
	"github.com/eduverse-labs/eduverse/src/utils"
	"github.com/jpillora/backoff"
)

const (
	UserAgentURL     = "https://eduverse.app/"
	UserAgentVersion = "1.0"
)

var UserAgent = fmt.Sprintf("EduverseClient (%s, %s)", UserAgentURL, UserAgentVersion)

// Engine is a client for an HTTP contract engine that holds a backend wallet
// and submits transactions on our behalf. Reads are synchronous; writes are
// queued by the engine and we poll until they are mined.
type Engine struct {
	cfg        config.ChainConfig
	httpClient *http.Client

	// Overridable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(cfg config.ChainConfig) *Engine {
	return &Engine{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		sleep:      utils.SleepContext,
	}
}

func (e *Engine) contractPath(suffix string) string {
	return fmt.Sprintf("/contract/%d/%s/%s", e.cfg.ChainID, e.cfg.ContractAddress, suffix)
}

func (e *Engine) makeRequest(ctx context.Context, method string, path string, body []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.cfg.EngineURL+path, bodyReader)
	if err != nil {
		return nil, oops.New(err, "failed to build contract engine request")
	}
	if e.cfg.AccessToken != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", e.cfg.AccessToken))
	}
	req.Header.Add("User-Agent", UserAgent)
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	return req, nil
}

func (e *Engine) doWithRateLimiting(ctx context.Context, name string, getReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	for {
		req, err := getReq(ctx)
		if err != nil {
			return nil, err
		}
		res, err := e.httpClient.Do(req)
		if err != nil {
			return nil, &EngineError{Op: name, Err: err}
		}

		if res.StatusCode == http.StatusTooManyRequests {
			res.Body.Close()
			wait := time.Second
			if retryAfter, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil {
				wait = time.Duration(retryAfter) * time.Second
			}
			logging.ExtractLogger(ctx).Warn().Str("name", name).Dur("wait", wait).Msg("rate limited by contract engine")
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		return res, nil
	}
}

type engineErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

// call performs a request and decodes the "result" field of a successful
// response into out.
func (e *Engine) call(ctx context.Context, name string, getReq func(ctx context.Context) (*http.Request, error), out any) error {
	p := perf.ExtractPerf(ctx)
	block := p.StartBlock("ENGINE", name)
	defer block.End()

	res, err := e.doWithRateLimiting(ctx, name, getReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return &EngineError{Op: name, Err: err}
	}

	if res.StatusCode >= 400 {
		logErrorResponse(ctx, name, res, bodyBytes)
		var errBody engineErrorBody
		_ = json.Unmarshal(bodyBytes, &errBody)
		msg := utils.OrDefault(errBody.Error.Message, errBody.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(bodyBytes))
		}
		return &EngineError{Op: name, Status: res.StatusCode, Message: msg}
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return oops.New(err, "failed to unmarshal %s response", name)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return oops.New(err, "failed to decode %s result", name)
	}
	return nil
}

// Read calls a view function on the course contract.
func (e *Engine) Read(ctx context.Context, functionName string, args []string, out any) error {
	q := url.Values{}
	q.Set("functionName", functionName)
	if len(args) > 0 {
		q.Set("args", strings.Join(args, ","))
	}
	path := e.contractPath("read") + "?" + q.Encode()

	return e.call(ctx, functionName, func(ctx context.Context) (*http.Request, error) {
		return e.makeRequest(ctx, http.MethodGet, path, nil)
	}, out)
}

type writeRequest struct {
	FunctionName string   `json:"functionName"`
	Args         []string `json:"args"`
}

type writeResult struct {
	QueueID string `json:"queueId"`
}

type TxStatus string

const (
	TxQueued    TxStatus = "queued"
	TxSent      TxStatus = "sent"
	TxMined     TxStatus = "mined"
	TxErrored   TxStatus = "errored"
	TxCancelled TxStatus = "cancelled"
)

type transactionStatus struct {
	QueueID         string          `json:"queueId"`
	Status          TxStatus        `json:"status"`
	TransactionHash string          `json:"transactionHash"`
	ErrorMessage    string          `json:"errorMessage"`
	ReturnValue     json.RawMessage `json:"returnValue"`
}

// Receipt describes a mined write.
type Receipt struct {
	QueueID     string
	TxHash      string
	ReturnValue json.RawMessage
}

// Write queues a state-changing call and waits (up to the configured write
// timeout) for it to be mined.
func (e *Engine) Write(ctx context.Context, functionName string, args []string) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()

	body, err := json.Marshal(writeRequest{FunctionName: functionName, Args: args})
	if err != nil {
		return Receipt{}, oops.New(err, "failed to encode %s request", functionName)
	}

	var queued writeResult
	err = e.call(ctx, functionName, func(ctx context.Context) (*http.Request, error) {
		req, err := e.makeRequest(ctx, http.MethodPost, e.contractPath("write"), body)
		if err != nil {
			return nil, err
		}
		req.Header.Add("x-backend-wallet-address", e.cfg.WalletAddress)
		return req, nil
	}, &queued)
	if err != nil {
		return Receipt{}, timeoutAware(ctx, err)
	}
	if queued.QueueID == "" {
		return Receipt{}, oops.New(nil, "contract engine did not return a queue id for %s", functionName)
	}

	logging.ExtractLogger(ctx).Debug().Str("function", functionName).Str("queueId", queued.QueueID).Msg("transaction queued")

	receipt, err := e.waitForTransaction(ctx, functionName, queued.QueueID)
	return receipt, timeoutAware(ctx, err)
}

func (e *Engine) waitForTransaction(ctx context.Context, name string, queueID string) (Receipt, error) {
	b := backoff.Backoff{
		Min:    e.cfg.PollMin,
		Max:    e.cfg.PollMax,
		Factor: 1.5,
		Jitter: true,
	}
	path := "/transaction/status/" + url.PathEscape(queueID)

	for {
		var status transactionStatus
		err := e.call(ctx, name+" status", func(ctx context.Context) (*http.Request, error) {
			return e.makeRequest(ctx, http.MethodGet, path, nil)
		}, &status)
		if err != nil {
			return Receipt{}, err
		}

		switch status.Status {
		case TxMined:
			logging.ExtractLogger(ctx).Info().
				Str("function", name).
				Str("tx", status.TransactionHash).
				Msg("transaction mined")
			return Receipt{
				QueueID:     queueID,
				TxHash:      status.TransactionHash,
				ReturnValue: status.ReturnValue,
			}, nil
		case TxErrored, TxCancelled:
			return Receipt{}, &EngineError{
				Op:      name,
				Message: utils.OrDefault(status.ErrorMessage, string(status.Status)),
			}
		}

		if err := e.sleep(ctx, b.Duration()); err != nil {
			return Receipt{}, err
		}
	}
}

// timeoutAware turns a context deadline into ErrTimeout so that it
// classifies properly.
func timeoutAware(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return oops.New(ErrTimeout, "gave up waiting for the transaction")
	}
	return err
}

func logErrorResponse(ctx context.Context, name string, res *http.Response, body []byte) {
	dump, err := httputil.DumpResponse(res, false)
	if err != nil {
		dump = nil
	}

	logging.ExtractLogger(ctx).Error().
		Str("name", name).
		Int("status", res.StatusCode).
		Str("headers", string(dump)).
		Str("body", string(body)).
		Msg("contract engine returned an error")
}
