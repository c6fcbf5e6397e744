package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"bargetrader/internal/book"
	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
	"bargetrader/internal/game"
	"bargetrader/internal/store"
)

// Options configures the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed origins; empty allows all (development mode).
	CORSOrigins []string
	// RateLimit is the number of requests per minute per IP; values <= 0 disable it.
	RateLimit int
	// StaticFS, when set, is served at the root as the browser client.
	StaticFS fs.FS
}

type Server struct {
	lobby       *game.Lobby
	store       *store.Store
	hub         *Hub
	rateLimiter *RateLimiter
	logger      *slog.Logger
	opts        Options
	upgrader    websocket.Upgrader
}

// NewServer wires the HTTP surface to lobby. st may be nil, in which case the
// history routes report not found. Create the server before the lobby runs so
// every round is attached to the push hub.
func NewServer(lobby *game.Lobby, st *store.Store, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		lobby:  lobby,
		store:  st,
		hub:    NewHub(logger),
		logger: logger,
		opts:   opts,
	}
	if opts.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(opts.RateLimit, time.Minute)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	lobby.OnRoundStart(s.hub.Attach)
	return s
}

// checkCORSOrigin checks if an origin is allowed
func (s *Server) checkCORSOrigin(origin string) bool {
	if len(s.opts.CORSOrigins) == 0 {
		return true
	}
	// same-origin request
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.CORSOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogging(s.logger))
	r.Use(middleware.Recoverer)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}
	allowedOrigins := s.opts.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.healthz)

	r.Route("/api", func(r chi.Router) {
		// {session_id} also accepts "current"
		r.Route("/rounds/{session_id}", func(r chi.Router) {
			r.Get("/", s.getRound)
			r.Post("/participants", s.join)
			r.Get("/participants/{participant_id}/quote", s.getQuote)
			r.Get("/participants/{participant_id}/summary", s.getSummary)
			r.Get("/quotes", s.listQuotes)
			r.Post("/quotes", s.submitQuote)
			r.Get("/trades", s.getTrades)
			r.Post("/trades", s.executeTrade)
			r.Get("/updates", s.pollUpdates)
			r.Get("/results", s.getResults)
		})

		r.Get("/history", s.listHistory)
		r.Get("/history/{session_id}", s.getHistory)
		r.Get("/players/{name}/stats", s.getPlayerStats)
	})

	r.Get("/ws", s.handleWebSocket)

	if s.opts.StaticFS != nil {
		r.Handle("/*", http.FileServer(http.FS(s.opts.StaticFS)))
	}

	return r
}

// requestLogging logs each request's method, path, status and duration.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.store != nil {
		err := s.store.Ping()
		var version int
		if err == nil {
			version, err = s.store.SchemaVersion()
		}
		if err != nil {
			s.logger.Error("store health check failed", "error", err)
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		resp["schema_version"] = version
	}
	if cur := s.lobby.Current(); cur != nil {
		resp["session_id"] = cur.ID
	}
	WriteJSON(w, http.StatusOK, resp)
}

// round resolves the {session_id} path parameter.
func (s *Server) round(r *http.Request) (*game.Round, error) {
	return s.resolveRound(chi.URLParam(r, "session_id"))
}

func (s *Server) resolveRound(id string) (*game.Round, error) {
	if id == "" || id == "current" {
		cur := s.lobby.Current()
		if cur == nil {
			return nil, domain.NotFoundf("no round has started")
		}
		return cur, nil
	}
	return s.lobby.Get(id)
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, round.Status())
}

type joinResponse struct {
	Status        string `json:"status"`
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
}

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	var req JoinRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	snap, err := round.Join(req.Name)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, joinResponse{
		Status:        "success",
		SessionID:     round.ID,
		ParticipantID: snap.ID,
		Name:          snap.Name,
	})
}

type quoteResponse struct {
	Status string `json:"status"`
	book.Quote
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	q, err := round.GetQuote(chi.URLParam(r, "participant_id"))
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, quoteResponse{Status: "success", Quote: q})
}

func (s *Server) listQuotes(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"quotes": round.ListQuotes(),
	})
}

func (s *Server) submitQuote(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	var req QuoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	bid, offer, err := req.changes()
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	q, err := round.SubmitQuote(req.ParticipantID, bid, offer)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, quoteResponse{Status: "success", Quote: q})
}

type tradeResponse struct {
	Status string       `json:"status"`
	Trade  domain.Trade `json:"trade"`
}

func (s *Server) executeTrade(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	var req TradeRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	mreq, err := req.request()
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	trade, err := round.ExecuteTrade(mreq)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, tradeResponse{Status: "success", Trade: trade})
}

func (s *Server) getTrades(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	trades := round.Trades()
	if trades == nil {
		trades = []domain.Trade{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "success", "trades": trades})
}

// updatesResponse omits every dimension that did not change since the
// cursor.
type updatesResponse struct {
	Status       string                 `json:"status"`
	Cursor       uint64                 `json:"cursor"`
	State        game.State             `json:"state"`
	RemainingSec float64                `json:"remaining_sec"`
	Message      *string                `json:"message_content,omitempty"`
	News         *domain.News           `json:"news,omitempty"`
	TradeData    *domain.Trade          `json:"trade_data,omitempty"`
	Trades       []domain.Trade         `json:"trades,omitempty"`
	AIBid        *decimal.NullDecimal   `json:"ai_bid,omitempty"`
	AIOffer      *decimal.NullDecimal   `json:"ai_offer,omitempty"`
	AIName       *string                `json:"ai_name,omitempty"`
	Quotes       []eventlog.QuoteUpdate `json:"quotes,omitempty"`
}

func newUpdatesResponse(u game.Updates) updatesResponse {
	resp := updatesResponse{
		Status:       "success",
		Cursor:       u.Cursor,
		State:        u.State,
		RemainingSec: u.Remaining.Seconds(),
		Trades:       u.Trades,
		Quotes:       u.Quotes,
	}
	if u.HasMessage {
		msg := u.Message
		resp.Message = &msg.Content
		resp.News = &msg
	}
	if u.HasTrade {
		trade := u.LatestTrade
		resp.TradeData = &trade
	}
	if u.HasAIQuote {
		q := u.AIQuote
		resp.AIBid = &q.Bid
		resp.AIOffer = &q.Offer
		resp.AIName = &q.Name
	}
	return resp
}

func (s *Server) pollUpdates(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	var cursor uint64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			WriteError(w, s.logger, domain.Validationf("cursor must be a non-negative integer"))
			return
		}
	}
	WriteJSON(w, http.StatusOK, newUpdatesResponse(round.PollUpdates(cursor)))
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	sum, err := round.Summarize(chi.URLParam(r, "participant_id"))
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, sum)
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	round, err := s.round(r)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	results := round.Results()
	if results == nil {
		WriteError(w, s.logger, domain.NotFoundf("round %s has not ended", round.ID))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"session_id": round.ID,
		"results":    results,
	})
}

func (s *Server) requireStore() error {
	if s.store == nil {
		return domain.NotFoundf("round history is disabled")
	}
	return nil
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.requireStore(); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	rounds, err := s.store.RecentRounds(limit)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	if rounds == nil {
		rounds = []store.RoundRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"status": "success", "rounds": rounds})
}

type historyResponse struct {
	Status  string              `json:"status"`
	Round   *store.RoundRecord  `json:"round"`
	Results []store.RoundResult `json:"results"`
	Trades  []domain.Trade      `json:"trades"`
	News    []domain.News       `json:"news"`
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.requireStore(); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "session_id")
	round, err := s.store.GetRound(id)
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	resp := historyResponse{Status: "success", Round: round}
	if resp.Results, err = s.store.GetRoundResults(id); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	if resp.Trades, err = s.store.GetRoundTrades(id); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	if resp.News, err = s.store.GetRoundNews(id); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) getPlayerStats(w http.ResponseWriter, r *http.Request) {
	if err := s.requireStore(); err != nil {
		WriteError(w, s.logger, err)
		return
	}
	stats, err := s.store.GetPlayerStats(chi.URLParam(r, "name"))
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	round, err := s.resolveRound(r.URL.Query().Get("session_id"))
	if err != nil {
		WriteError(w, s.logger, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:       s.hub,
		sessionID: round.ID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	s.hub.Register(client)

	// Events logged after the snapshot's cursor follow on the channel.
	status := round.Status()
	s.hub.Send(client, Message{Type: "snapshot", Status: &status, Quotes: round.ListQuotes()})

	go client.WritePump()
	go client.ReadPump()
}

// Shutdown stops the rate limiter and disconnects WebSocket clients.
func (s *Server) Shutdown() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.hub.Stop()
}
