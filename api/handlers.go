/*
handlers.go - HTTP API handlers for the money tracker

PURPOSE:
  Exposes the ledger engine via a JSON API. Handles HTTP request/response
  and JSON serialization, and delegates every rule to ledger.Engine.

ENDPOINTS:
  Accounts:
    POST   /accounts                 Create account
    GET    /accounts                 List accounts (cached)
    PUT    /accounts/{id}            Replace account

  Categories:
    POST   /categories               Create root or subcategory
    GET    /categories               Flat list (cached)
    GET    /categories/tree          Roots with children (cached)
    PUT    /categories/{id}          Rename; retype roots

  Transactions:
    POST   /transactions             Post income/expense
    GET    /transactions             Filtered, paginated, newest first
    PUT    /transactions/{id}        Partial update
    DELETE /transactions/{id}        Delete (both legs for transfers)
    POST   /transfers                Move money between accounts

  Probes:
    GET    /health                   Liveness
    GET    /ready                    Database + cache readiness

CACHING:
  List reads go through cache.ReadThrough. Writes invalidate after the
  engine has committed:
  - accounts:all after account, transaction and transfer writes
    (all of them move balances)
  - categories:all and categories:tree after category writes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient funds, credit limit exceeded
  - 404: Resource not found
  - 409: Conflict (duplicate account name, category in use)
  - 500: Internal errors (details logged, never returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/money-tracker/cache"
	"github.com/warp/money-tracker/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handler's collaborators.
type Deps struct {
	Engine *ledger.Engine
	Reads  *cache.ReadThrough
	// Store is pinged by /ready; a failure makes the service not ready.
	Store Pinger
	// Cache is optional; a failure is reported as degraded mode.
	Cache   Pinger
	Version string
	Logger  *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine  *ledger.Engine
	reads   *cache.ReadThrough
	store   Pinger
	cache   Pinger
	version string
	log     *zap.Logger
}

// NewHandler creates a handler. A nil Reads disables caching.
func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reads := d.Reads
	if reads == nil {
		reads = cache.NewReadThrough(cache.Nop{}, 0, log)
	}
	return &Handler{
		engine:  d.Engine,
		reads:   reads,
		store:   d.Store,
		cache:   d.Cache,
		version: d.Version,
		log:     log.Named("api"),
	}
}

// =============================================================================
// PROBES
// =============================================================================

// Health always answers while the process is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

// Ready checks the database and reports the cache state.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.log.Error("readiness: database unreachable", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", nil)
			return
		}
	}

	redis := "connected"
	if h.cache == nil || h.cache.Ping(ctx) != nil {
		redis = "unavailable (degraded mode)"
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Database: "connected", Redis: redis})
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

func (req AccountRequest) toNewAccount() ledger.NewAccount {
	return ledger.NewAccount{
		Name:        req.Name,
		Balance:     req.Balance,
		Kind:        ledger.AccountKind(req.AccountType),
		CreditLimit: req.CreditLimit,
	}
}

// CreateAccount creates an account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	a, err := h.engine.CreateAccount(r.Context(), req.toNewAccount())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyAccounts)

	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	dtos, err := cache.Read(r.Context(), h.reads, cache.KeyAccounts, func(ctx context.Context) ([]AccountDTO, error) {
		accounts, err := h.engine.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		dtos := make([]AccountDTO, len(accounts))
		for i, a := range accounts {
			dtos[i] = toAccountDTO(a)
		}
		return dtos, nil
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateAccount replaces an account.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	a, err := h.engine.UpdateAccount(r.Context(), ledger.AccountID(id), req.toNewAccount())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyAccounts)

	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// =============================================================================
// CATEGORY ENDPOINTS
// =============================================================================

// CreateCategory creates a root category (default type expense) or a
// subcategory when parent_id is given.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := ledger.NewCategory{
		Name:     req.Name,
		ParentID: (*ledger.CategoryID)(req.ParentID),
	}
	if req.Type != nil {
		in.Type = ledger.CategoryType(*req.Type)
	}

	c, err := h.engine.CreateCategory(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyCategories, cache.KeyCategoryTree)

	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}

// ListCategories returns every category, roots and children alike.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	dtos, err := cache.Read(r.Context(), h.reads, cache.KeyCategories, func(ctx context.Context) ([]CategoryDTO, error) {
		categories, err := h.engine.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		dtos := make([]CategoryDTO, len(categories))
		for i, c := range categories {
			dtos[i] = toCategoryDTO(c)
		}
		return dtos, nil
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CategoryTree returns root categories with their children nested.
func (h *Handler) CategoryTree(w http.ResponseWriter, r *http.Request) {
	dtos, err := cache.Read(r.Context(), h.reads, cache.KeyCategoryTree, func(ctx context.Context) ([]CategoryTreeDTO, error) {
		nodes, err := h.engine.CategoryTree(ctx)
		if err != nil {
			return nil, err
		}
		dtos := make([]CategoryTreeDTO, len(nodes))
		for i, n := range nodes {
			dtos[i] = toCategoryTreeDTO(n)
		}
		return dtos, nil
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateCategory renames a category. The type is applied to roots only.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := ledger.CategoryUpdate{Name: req.Name}
	if req.Type != nil {
		t := ledger.CategoryType(*req.Type)
		in.Type = &t
	}

	c, err := h.engine.UpdateCategory(r.Context(), ledger.CategoryID(id), in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyCategories, cache.KeyCategoryTree)

	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// CreateTransaction posts an income or expense.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	in := ledger.NewTransaction{
		Amount:      req.Amount,
		Description: req.Description,
		AccountID:   ledger.AccountID(req.AccountID),
		CategoryID:  (*ledger.CategoryID)(req.CategoryID),
	}
	if req.CreatedAt != nil {
		in.CreatedAt = *req.CreatedAt
	}

	tx, err := h.engine.CreateTransaction(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyAccounts)

	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// ListTransactions returns transactions newest first.
//
// Query parameters: account_id, category_id (a root also matches its
// children), date_from, date_to (inclusive), limit (1-200, default 50), offset.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := parseTransactionQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	views, err := h.engine.ListTransactions(r.Context(), q)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]TransactionViewDTO, len(views))
	for i, v := range views {
		dtos[i] = toTransactionViewDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateTransaction applies a partial update, moving balances as needed.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patch := ledger.TransactionPatch{
		Amount:      req.Amount,
		Description: req.Description,
		CreatedAt:   req.CreatedAt,
		AccountID:   (*ledger.AccountID)(req.AccountID),
		CategoryID:  (*ledger.CategoryID)(req.CategoryID),
	}

	tx, err := h.engine.UpdateTransaction(r.Context(), ledger.TransactionID(id), patch)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyAccounts)

	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

// DeleteTransaction deletes a transaction; for a transfer, both legs.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.engine.DeleteTransaction(r.Context(), ledger.TransactionID(id)); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyAccounts)

	writeJSON(w, http.StatusOK, DeleteResponse{Status: "deleted", ID: id})
}

// CreateTransfer moves money between two accounts.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.engine.CreateTransfer(r.Context(), ledger.NewTransfer{
		FromAccountID: ledger.AccountID(req.FromAccountID),
		ToAccountID:   ledger.AccountID(req.ToAccountID),
		Amount:        req.Amount,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.reads.Invalidate(r.Context(), cache.KeyAccounts)

	writeJSON(w, http.StatusOK, TransferResponse{
		Status:      "success",
		FromBalance: res.FromBalance.InexactFloat64(),
		ToBalance:   res.ToBalance.InexactFloat64(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

var errBadID = errors.New("id must be a positive integer")

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errBadID.Error(), nil)
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON body into dst, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// dateLayouts are accepted for date_from / date_to.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func parseTransactionQuery(r *http.Request) (ledger.TransactionQuery, error) {
	var q ledger.TransactionQuery
	values := r.URL.Query()

	if s := values.Get("account_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return q, errors.New("account_id must be an integer")
		}
		aid := ledger.AccountID(id)
		q.AccountID = &aid
	}
	if s := values.Get("category_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return q, errors.New("category_id must be an integer")
		}
		cid := ledger.CategoryID(id)
		q.CategoryID = &cid
	}
	if s := values.Get("date_from"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return q, errors.New("date_from must be a date or RFC 3339 timestamp")
		}
		q.From = &t
	}
	if s := values.Get("date_to"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return q, errors.New("date_to must be a date or RFC 3339 timestamp")
		}
		q.To = &t
	}

	q.Limit = ledger.DefaultPageSize
	if s := values.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, errors.New("limit must be an integer")
		}
		q.Limit = n
		if n == 0 {
			// zero would mean "default" to the engine
			q.Limit = -1
		}
	}
	if s := values.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, errors.New("offset must be an integer")
		}
		q.Offset = n
	}
	return q, nil
}

// writeLedgerError maps an engine error to a status. Internal errors are
// logged and replaced with a generic message.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
