package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/id"
	"github.com/ggonzalez94/wallet-agent/internal/orchestrator"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
)

type executeQuoteBody struct {
	Quote json.RawMessage `json:"quote"`
	UID   string          `json:"uid"`
}

func (s *Server) executeQuote(c *gin.Context) {
	var body executeQuoteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing quote"})
		return
	}
	s.respond(c, s.orchestrator.ExecuteQuote(c.Request.Context(), body.Quote, body.UID))
}

func (s *Server) quoteAndExecute(c *gin.Context) {
	var req orchestrator.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(string(req.Intent)) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing intent"})
		return
	}
	s.respond(c, s.orchestrator.Execute(c.Request.Context(), req))
}

func (s *Server) respond(c *gin.Context, resp orchestrator.Response) {
	status := resp.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (s *Server) chains(c *gin.Context) {
	s.relayJSON(c, func(ctx context.Context) (json.RawMessage, error) { return s.relay.Chains(ctx) })
}

func (s *Server) executionStatus(c *gin.Context) {
	requestID := c.Query("requestId")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing requestId"})
		return
	}
	s.relayJSON(c, func(ctx context.Context) (json.RawMessage, error) { return s.relay.ExecutionStatus(ctx, requestID) })
}

func (s *Server) requests(c *gin.Context) {
	query := c.Request.URL.Query()
	s.relayJSON(c, func(ctx context.Context) (json.RawMessage, error) { return s.relay.Requests(ctx, query) })
}

func (s *Server) tokenPrice(c *gin.Context) {
	address, rawChain := c.Query("address"), c.Query("chainId")
	if address == "" || rawChain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing address or chainId"})
		return
	}
	chainID, err := strconv.ParseInt(rawChain, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chainId"})
		return
	}
	s.relayJSON(c, func(ctx context.Context) (json.RawMessage, error) { return s.relay.TokenPrice(ctx, address, chainID) })
}

// passThrough forwards the request body to a relay POST endpoint.
func (s *Server) passThrough(call func(context.Context, json.RawMessage) (json.RawMessage, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil || len(strings.TrimSpace(string(body))) == 0 || !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing request body"})
			return
		}
		s.relayJSON(c, func(ctx context.Context) (json.RawMessage, error) { return call(ctx, body) })
	}
}

func (s *Server) relayJSON(c *gin.Context, call func(context.Context) (json.RawMessage, error)) {
	out, err := call(c.Request.Context())
	if err != nil {
		s.relayError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// relayError replies with the upstream status and body when there is one.
func (s *Server) relayError(c *gin.Context, err error) {
	s.logger.Warn("relay call failed",
		zap.String("correlation_id", GetCorrelationID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	if statusErr, ok := httpx.AsStatusError(err); ok {
		c.JSON(statusErr.StatusCode, gin.H{"error": statusErr.Details()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type swapQuoteBody struct {
	Provider   string `json:"provider"`
	ChainID    int64  `json:"chainId"`
	SellToken  string `json:"sellToken"`
	BuyToken   string `json:"buyToken"`
	SellAmount string `json:"sellAmount"`
	Taker      string `json:"taker"`
	Execute    bool   `json:"execute"`
}

func (s *Server) swapQuote(c *gin.Context) {
	var body swapQuoteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if body.ChainID == 0 || body.SellToken == "" || body.BuyToken == "" || body.SellAmount == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing chainId, sellToken, buyToken or sellAmount"})
		return
	}
	drivers, err := s.selectDrivers(body.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := providers.SwapQuoteRequest{
		ChainID:    body.ChainID,
		SellToken:  body.SellToken,
		BuyToken:   body.BuyToken,
		SellAmount: body.SellAmount,
		Taker:      body.Taker,
	}
	if body.Execute {
		if s.account == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "execution requires a configured signer"})
			return
		}
		req.Account = s.account
		if req.Taker == "" {
			req.Taker = s.account.Address().Hex()
		}
	}
	if !id.IsEVMAddress(req.Taker) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "taker must be a valid address"})
		return
	}

	results := providers.Route(c.Request.Context(), drivers, req)
	resp := gin.H{"quotes": providers.Flatten(results)}
	for _, r := range results {
		if r.Executed {
			resp["executed_by"] = r.Driver
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) selectDrivers(name string) ([]providers.DEXAggregator, error) {
	if strings.TrimSpace(name) == "" {
		return s.drivers, nil
	}
	for _, d := range s.drivers {
		if strings.EqualFold(d.Info().Name, name) {
			return []providers.DEXAggregator{d}, nil
		}
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

type balanceBody struct {
	Address string `json:"address"`
	ChainID int64  `json:"chainId"`
	// Token is a symbol or address; empty means the native currency.
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) balanceCheck(c *gin.Context) {
	var body balanceBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Address == "" || body.ChainID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing address or chainId"})
		return
	}
	if !id.IsEVMAddress(body.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address must be a valid address"})
		return
	}
	if !id.IsKnownChain(body.ChainID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported chainId"})
		return
	}
	chain := id.ChainByID(body.ChainID)

	req := guard.BalanceRequest{
		Wallet:         common.HexToAddress(body.Address),
		RequiredAmount: new(big.Int),
		ChainID:        body.ChainID,
	}
	decimals := 18
	symbol := "ETH"
	if strings.TrimSpace(body.Token) != "" {
		asset, err := id.ParseAsset(body.Token, chain)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !asset.Native {
			token := common.HexToAddress(asset.Address)
			req.Token = &token
		}
		decimals, symbol = asset.Decimals, asset.Symbol
	}
	if strings.TrimSpace(body.Amount) != "" {
		base, err := id.ToBaseUnits(body.Amount, decimals)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.RequiredAmount.SetString(base, 10)
	}

	res := s.guard.CheckBalance(c.Request.Context(), req)
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"address":   req.Wallet.Hex(),
		"chainId":   body.ChainID,
		"chainName": chain.Name,
		"token":     symbol,
		"balance":   id.FormatUnits(res.CurrentBalance, decimals),
		"check":     res,
	})
}
