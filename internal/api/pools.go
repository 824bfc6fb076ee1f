package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"reward-farming/internal/farming"
)

// CallerHeader carries the authenticated caller identity.
const CallerHeader = "X-Farm-Caller"

// Pools serves the farming engine over HTTP.
type Pools struct {
	engine   *farming.Engine
	pageSize int
}

// NewPools returns the pool handlers; pageSize bounds event listings without an explicit limit.
func NewPools(engine *farming.Engine, pageSize int) *Pools {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Pools{engine: engine, pageSize: pageSize}
}

func caller(req *http.Request) (common.Address, error) {
	v := req.Header.Get(CallerHeader)
	if v == "" {
		return common.Address{}, HTTPError(farming.ErrUnauthorized, http.StatusForbidden)
	}
	return parseAddress(CallerHeader, v)
}

func poolID(req *http.Request) (common.Hash, error) {
	v := mux.Vars(req)["pool"]
	b, err := hexBytes(v)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, BadRequest(fmt.Errorf("pool: invalid id %q", v))
	}
	return common.BytesToHash(b), nil
}

func (p *Pools) handleInitialize(w http.ResponseWriter, req *http.Request) error {
	from, err := caller(req)
	if err != nil {
		return err
	}
	var body InitializePoolRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}
	staking, err := parseAddress("staking_asset", body.StakingAsset)
	if err != nil {
		return err
	}
	base, err := parseOptionalAddress("base_key", body.BaseKey, from)
	if err != nil {
		return err
	}
	rewards := make([]common.Address, 0, len(body.RewardAssets))
	for _, v := range body.RewardAssets {
		a, err := parseAddress("reward_assets", v)
		if err != nil {
			return err
		}
		rewards = append(rewards, a)
	}

	pool, err := p.engine.InitializePool(req.Context(), farming.InitializePoolParams{
		Authority:    from,
		StakingAsset: staking,
		RewardAssets: rewards,
		BaseKey:      base,
		Duration:     body.Duration,
	})
	if err != nil {
		return err
	}
	return WriteJSONStatus(w, http.StatusCreated, convertPool(pool))
}

func (p *Pools) handleList(w http.ResponseWriter, req *http.Request) error {
	pools, err := p.engine.ListPools(req.Context())
	if err != nil {
		return err
	}
	out := make([]Pool, 0, len(pools))
	for _, pool := range pools {
		out = append(out, convertPool(pool))
	}
	return WriteJSON(w, out)
}

func (p *Pools) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	view, err := p.engine.Project(req.Context(), id, common.Address{})
	if err != nil {
		return err
	}
	return WriteJSON(w, convertPool(view.Pool))
}

func (p *Pools) handleCreateUser(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	pos, err := p.engine.CreateUser(req.Context(), id, from)
	if err != nil {
		return err
	}
	return WriteJSONStatus(w, http.StatusCreated, convertPosition(pos))
}

func (p *Pools) handleGetUser(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	owner, err := parseAddress("owner", mux.Vars(req)["owner"])
	if err != nil {
		return err
	}
	view, err := p.engine.Project(req.Context(), id, owner)
	if err != nil {
		return err
	}
	return WriteJSON(w, PositionView{
		Position: convertPosition(view.Position),
		Pending:  amountsOf(view.Position.Owed()),
		At:       view.At,
	})
}

func (p *Pools) stakeRequest(req *http.Request) (farming.StakeRequest, error) {
	id, err := poolID(req)
	if err != nil {
		return farming.StakeRequest{}, err
	}
	from, err := caller(req)
	if err != nil {
		return farming.StakeRequest{}, err
	}
	var body AmountRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return farming.StakeRequest{}, BadRequest(fmt.Errorf("body: %w", err))
	}
	amount, err := body.Amount.Uint64()
	if err != nil {
		return farming.StakeRequest{}, BadRequest(err)
	}
	owner, err := parseOptionalAddress("owner", body.Owner, from)
	if err != nil {
		return farming.StakeRequest{}, err
	}
	return farming.StakeRequest{Pool: id, Caller: from, Owner: owner, Amount: amount}, nil
}

func (p *Pools) handleDeposit(w http.ResponseWriter, req *http.Request) error {
	r, err := p.stakeRequest(req)
	if err != nil {
		return err
	}
	res, err := p.engine.Deposit(req.Context(), r)
	if err != nil {
		return err
	}
	return WriteJSON(w, StakeResponse{Position: convertPosition(res.Position), TotalStaked: amountOf(res.TotalStaked)})
}

func (p *Pools) handleWithdraw(w http.ResponseWriter, req *http.Request) error {
	r, err := p.stakeRequest(req)
	if err != nil {
		return err
	}
	res, err := p.engine.Withdraw(req.Context(), r)
	if err != nil {
		return err
	}
	return WriteJSON(w, StakeResponse{Position: convertPosition(res.Position), TotalStaked: amountOf(res.TotalStaked)})
}

func (p *Pools) handleFund(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	var body FundRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}
	slot, err := farming.ParseSlot(body.Slot)
	if err != nil {
		return BadRequest(err)
	}
	amount, err := body.Amount.Uint64()
	if err != nil {
		return BadRequest(err)
	}
	pool, err := p.engine.Fund(req.Context(), farming.FundRequest{Pool: id, Caller: from, Slot: slot, Amount: amount})
	if err != nil {
		return err
	}
	return WriteJSON(w, convertPool(pool))
}

func (p *Pools) handleClaim(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	var body OwnerRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}
	owner, err := parseOptionalAddress("owner", body.Owner, from)
	if err != nil {
		return err
	}
	res, err := p.engine.Claim(req.Context(), id, from, owner)
	if err != nil {
		return err
	}
	return WriteJSON(w, ClaimResponse{Position: convertPosition(res.Position), Amounts: amountsOf(res.Amounts)})
}

func (p *Pools) handlePause(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	pool, err := p.engine.Pause(req.Context(), id, from)
	if err != nil {
		return err
	}
	return WriteJSON(w, convertPool(pool))
}

func (p *Pools) handleUnpause(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	pool, err := p.engine.Unpause(req.Context(), id, from)
	if err != nil {
		return err
	}
	return WriteJSON(w, convertPool(pool))
}

func (p *Pools) handleAuthorizeFunder(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	var body FunderRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}
	funder, err := parseAddress("funder", body.Funder)
	if err != nil {
		return err
	}
	pool, err := p.engine.AuthorizeFunder(req.Context(), id, from, funder)
	if err != nil {
		return err
	}
	return WriteJSON(w, convertPool(pool))
}

func (p *Pools) handleDeauthorizeFunder(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	funder, err := parseAddress("funder", mux.Vars(req)["funder"])
	if err != nil {
		return err
	}
	pool, err := p.engine.DeauthorizeFunder(req.Context(), id, from, funder)
	if err != nil {
		return err
	}
	return WriteJSON(w, convertPool(pool))
}

func (p *Pools) handleSweep(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	from, err := caller(req)
	if err != nil {
		return err
	}
	var body OwnerRequest
	if err := ParseJSON(req.Body, &body); err != nil {
		return BadRequest(fmt.Errorf("body: %w", err))
	}
	recipient, err := parseOptionalAddress("recipient", body.Recipient, from)
	if err != nil {
		return err
	}
	swept, err := p.engine.SweepExcess(req.Context(), id, from, recipient)
	if err != nil {
		return err
	}
	return WriteJSON(w, SweepResponse{Swept: amountOf(swept)})
}

func (p *Pools) handleEvents(w http.ResponseWriter, req *http.Request) error {
	id, err := poolID(req)
	if err != nil {
		return err
	}
	limit := p.pageSize
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return BadRequest(fmt.Errorf("limit: invalid value %q", v))
		}
		limit = n
	}
	if _, err := p.engine.GetPool(req.Context(), id); err != nil {
		return err
	}
	events, err := p.engine.Events(req.Context(), id, limit)
	if err != nil {
		return err
	}
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, convertEvent(ev))
	}
	return WriteJSON(w, out)
}

// Mount registers the pool routes under pathPrefix.
func (p *Pools) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleInitialize))
	sub.Path("").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(p.handleList))
	sub.Path("/{pool}").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(p.handleGet))
	sub.Path("/{pool}/users").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleCreateUser))
	sub.Path("/{pool}/users/{owner}").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(p.handleGetUser))
	sub.Path("/{pool}/deposit").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleDeposit))
	sub.Path("/{pool}/withdraw").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleWithdraw))
	sub.Path("/{pool}/fund").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleFund))
	sub.Path("/{pool}/claim").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleClaim))
	sub.Path("/{pool}/pause").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handlePause))
	sub.Path("/{pool}/unpause").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleUnpause))
	sub.Path("/{pool}/funders").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleAuthorizeFunder))
	sub.Path("/{pool}/funders/{funder}").Methods(http.MethodDelete).HandlerFunc(WrapHandlerFunc(p.handleDeauthorizeFunder))
	sub.Path("/{pool}/sweep").Methods(http.MethodPost).HandlerFunc(WrapHandlerFunc(p.handleSweep))
	sub.Path("/{pool}/events").Methods(http.MethodGet).HandlerFunc(WrapHandlerFunc(p.handleEvents))
}
