package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/defolio/defolio/internal/domain"
)

// WSProvider implements WalletProvider over a websocket connection opened by
// the dashboard frontend. The browser holds the signing key; this side only
// forwards requests and correlates responses by ID.
//
// At most one wallet connection is active at a time; a new connection
// replaces the previous one.
type WSProvider struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan wsResponse

	// requestTimeout bounds how long a signing request may sit in the
	// user's wallet before the call gives up.
	requestTimeout time.Duration
}

// wsRequest is one message to the browser wallet.
type wsRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// wsResponse is the browser's reply. Error carries the provider's own code
// and message, which feed straight into ClassifySigningError.
type wsResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewWSProvider creates a WSProvider. requestTimeout bounds each wallet
// round-trip; signing prompts sit with the user, so it should be generous.
func NewWSProvider(requestTimeout time.Duration, logger *slog.Logger) *WSProvider {
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	return &WSProvider{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:         logger.With(slog.String("component", "ws_provider")),
		pending:        make(map[string]chan wsResponse),
		requestTimeout: requestTimeout,
	}
}

// HandleWS upgrades an HTTP request into the wallet connection and pumps
// responses until the socket closes.
func (p *WSProvider) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn = conn
	p.mu.Unlock()

	p.logger.Info("wallet connected", slog.String("remote", r.RemoteAddr))
	p.readLoop(conn)
}

func (p *WSProvider) readLoop(conn *websocket.Conn) {
	defer func() {
		p.mu.Lock()
		if p.conn == conn {
			p.conn = nil
		}
		p.mu.Unlock()
		_ = conn.Close()
		p.logger.Info("wallet disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var resp wsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			p.logger.Warn("malformed wallet message", slog.String("error", err.Error()))
			continue
		}

		p.mu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// ActiveChain asks the wallet which chain it is connected to.
func (p *WSProvider) ActiveChain(ctx context.Context) (int64, error) {
	resp, err := p.call(ctx, "wallet_activeChain", nil)
	if err != nil {
		return 0, err
	}

	var chainID int64
	if err := json.Unmarshal(resp, &chainID); err != nil {
		return 0, fmt.Errorf("chain: decode active chain: %w", err)
	}
	return chainID, nil
}

// RequestChainSwitch asks the wallet to switch its active chain.
func (p *WSProvider) RequestChainSwitch(ctx context.Context, chainID int64) error {
	params, _ := json.Marshal(map[string]int64{"chainId": chainID})
	_, err := p.call(ctx, "wallet_switchChain", params)
	return err
}

// SignAndBroadcast forwards the transaction to the wallet for signing and
// submission, returning the transaction hash.
func (p *WSProvider) SignAndBroadcast(ctx context.Context, tx TxRequest) (string, error) {
	value := "0x0"
	if tx.Value != nil {
		value = "0x" + tx.Value.Text(16)
	}
	params, err := json.Marshal(map[string]any{
		"chainId": tx.ChainID,
		"to":      tx.To,
		"data":    tx.Data,
		"value":   value,
	})
	if err != nil {
		return "", fmt.Errorf("chain: encode tx params: %w", err)
	}

	resp, err := p.call(ctx, "wallet_signAndBroadcast", params)
	if err != nil {
		return "", err
	}

	var txHash string
	if err := json.Unmarshal(resp, &txHash); err != nil {
		return "", fmt.Errorf("chain: decode tx hash: %w", err)
	}
	return txHash, nil
}

// call sends one request over the wallet socket and waits for the matching
// response or a timeout.
func (p *WSProvider) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id := uuid.New().String()
	req := wsRequest{ID: id, Method: method, Params: params}

	ch := make(chan wsResponse, 1)

	p.mu.Lock()
	conn := p.conn
	if conn == nil {
		p.mu.Unlock()
		return nil, domain.ErrNoProvider
	}
	p.pending[id] = ch
	err := conn.WriteJSON(req)
	p.mu.Unlock()

	if err != nil {
		p.dropPending(id)
		return nil, fmt.Errorf("chain: write to wallet: %w", err)
	}

	timer := time.NewTimer(p.requestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		p.dropPending(id)
		return nil, ctx.Err()
	case <-timer.C:
		p.dropPending(id)
		return nil, fmt.Errorf("chain: wallet did not answer %s within %s", method, p.requestTimeout)
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &ProviderError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	}
}

func (p *WSProvider) dropPending(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

var _ WalletProvider = (*WSProvider)(nil)
