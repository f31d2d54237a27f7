package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"defiFetch/internal/metrics"
	"defiFetch/internal/model"
)

// Options configures the transport of a Client.
type Options struct {
	// ProxyURL routes HTTP requests through a proxy when set.
	ProxyURL string
	// AuthHeader is sent as the Authorization header on every request.
	AuthHeader string
	// Timeout bounds a single HTTP round trip. Zero uses 60s.
	Timeout time.Duration
	// MaxConnsPerHost sizes the idle connection pool. Zero uses 32.
	MaxConnsPerHost int

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Client is a thin JSON-RPC client shared by all fetch workers.
type Client struct {
	rpcClient *rpc.Client
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Log is an eth_getLogs entry with quantities already decoded from hex.
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	TxHash      common.Hash    `json:"transactionHash"`
	TxIndex     hexutil.Uint   `json:"transactionIndex"`
	LogIndex    hexutil.Uint   `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

// Transaction is the subset of eth_getTransactionByHash used downstream.
type Transaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	TxIndex     *hexutil.Uint   `json:"transactionIndex"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	Input       hexutil.Bytes   `json:"input"`
}

// Receipt is the subset of eth_getTransactionReceipt used downstream.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	Status      hexutil.Uint64 `json:"status"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
	Logs        []Log          `json:"logs"`
}

type blockHeader struct {
	Number    *hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64  `json:"timestamp"`
}

// NewClient dials rpcURL with the configured proxy, auth header and pool size.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient, err := newHTTPClient(opts)
	if err != nil {
		return nil, err
	}

	dialOpts := []rpc.ClientOption{rpc.WithHTTPClient(httpClient)}
	if opts.AuthHeader != "" {
		dialOpts = append(dialOpts, rpc.WithHeader("Authorization", opts.AuthHeader))
	}

	rpcClient, err := rpc.DialOptions(ctx, rpcURL, dialOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		metrics:   opts.Metrics,
		logger:    logger,
	}, nil
}

func newHTTPClient(opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	conns := opts.MaxConnsPerHost
	if conns <= 0 {
		conns = 32
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = conns
	transport.MaxIdleConnsPerHost = conns
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	c.metrics.IncRPC(method)
	if err := c.rpcClient.CallContext(ctx, result, method, args...); err != nil {
		return wrapError(method, err)
	}
	return nil
}

// LatestBlockNumber returns the chain head height.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := c.call(ctx, &head, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(head), nil
}

// GetLogs runs eth_getLogs for one address and block window. An empty string
// inside a topic position means "any" for that position.
func (c *Client) GetLogs(ctx context.Context, param model.GetLogsParam) ([]Log, error) {
	var logs []Log
	if err := c.call(ctx, &logs, "eth_getLogs", toFilterArg(param)); err != nil {
		return nil, err
	}
	return logs, nil
}

// BlockTimestamp returns the unix timestamp of the block at height.
func (c *Client) BlockTimestamp(ctx context.Context, height uint64) (uint64, error) {
	var header *blockHeader
	if err := c.call(ctx, &header, "eth_getBlockByNumber", hexutil.EncodeUint64(height), false); err != nil {
		return 0, err
	}
	if header == nil {
		return 0, fmt.Errorf("block %d not found", height)
	}
	return uint64(header.Timestamp), nil
}

// TransactionByHash returns the transaction or nil when the node does not know it.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var tx *Transaction
	if err := c.call(ctx, &tx, "eth_getTransactionByHash", common.HexToHash(hash)); err != nil {
		return nil, err
	}
	return tx, nil
}

// TransactionReceipt returns the receipt or nil when the transaction is pending or unknown.
func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var receipt *Receipt
	if err := c.call(ctx, &receipt, "eth_getTransactionReceipt", common.HexToHash(hash)); err != nil {
		return nil, err
	}
	return receipt, nil
}

func toFilterArg(param model.GetLogsParam) map[string]interface{} {
	arg := map[string]interface{}{
		"address":   strings.ToLower(param.Address),
		"fromBlock": hexutil.EncodeUint64(param.FromBlock),
		"toBlock":   hexutil.EncodeUint64(param.ToBlock),
	}
	if len(param.Topics) == 0 {
		return arg
	}

	topics := make([]interface{}, len(param.Topics))
	for pos, set := range param.Topics {
		clean := make([]string, 0, len(set))
		for _, topic := range set {
			if topic != "" {
				clean = append(clean, strings.ToLower(topic))
			}
		}
		switch len(clean) {
		case 0:
			topics[pos] = nil
		case 1:
			topics[pos] = clean[0]
		default:
			topics[pos] = clean
		}
	}
	arg["topics"] = topics
	return arg
}
