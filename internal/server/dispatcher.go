// File: internal/server/dispatcher.go
// quiznet server - request dispatcher (spec.md §4.6, §6, §7)

package server

import (
	"encoding/json"

	"quiznet/internal/account"
	"quiznet/internal/question"
	"quiznet/internal/session"
	"quiznet/internal/wire"
)

const (
	statut200 = "200"
	statut201 = "201"
	statut400 = "400"
	statut401 = "401"
	statut403 = "403"
	statut404 = "404"
	statut409 = "409"
	statut520 = "520"
)

// Dispatcher routes a parsed wire.Request to its handler (spec.md §4.6).
type Dispatcher struct {
	state *State
	bank  *question.Bank
}

func NewDispatcher(state *State, bank *question.Bank) *Dispatcher {
	return &Dispatcher{state: state, bank: bank}
}

// Dispatch handles one request for client and writes exactly one JSON
// response line to its send queue (spec.md §7: "the client receives
// exactly one JSON response for every request, including errors").
func (d *Dispatcher) Dispatch(client *Client, req *wire.Request) {
	key := string(req.Method) + " " + req.Endpoint

	switch key {
	case "POST player/register":
		d.handleRegister(client, req.Body)
	case "POST player/login":
		d.handleLogin(client, req.Body)
	case "GET themes/list":
		d.handleThemesList(client)
	case "GET sessions/list":
		d.handleSessionsList(client)
	case "POST session/create":
		d.handleSessionCreate(client, req.Body)
	case "POST session/join":
		d.handleSessionJoin(client, req.Body)
	case "POST session/start":
		d.handleSessionStart(client)
	case "POST question/answer":
		d.handleQuestionAnswer(client, req.Body)
	case "POST joker/use":
		d.handleJokerUse(client, req.Body)
	default:
		d.reply(client, req.Endpoint, statut520, "unknown endpoint", nil)
	}
}

// reply writes an envelope (+ optional extra fields, already flattened
// into a map) as the single response line for a request.
func (d *Dispatcher) reply(client *Client, action, statut, message string, extra map[string]any) {
	body := map[string]any{
		"action":  action,
		"statut":  statut,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	d.state.Send(client.ID, body)
}

func requiresAuth(client *Client) bool {
	return client.Authenticated()
}

// --- handlers -----------------------------------------------------------

func (d *Dispatcher) handleRegister(client *Client, body []byte) {
	var req struct {
		Pseudo   string `json:"pseudo"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		d.reply(client, "player/register", statut400, "malformed body", nil)
		return
	}

	switch d.state.Accounts.Register(req.Pseudo, req.Password) {
	case account.RegisterOK:
		d.reply(client, "player/register", statut201, "registered", nil)
	case account.RegisterConflict:
		d.reply(client, "player/register", statut409, "pseudo already exists", nil)
	case account.RegisterFull:
		d.reply(client, "player/register", statut400, "account store full", nil)
	default:
		d.reply(client, "player/register", statut400, "invalid pseudo or password", nil)
	}
}

func (d *Dispatcher) handleLogin(client *Client, body []byte) {
	var req struct {
		Pseudo   string `json:"pseudo"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		d.reply(client, "player/login", statut400, "malformed body", nil)
		return
	}

	if d.state.Accounts.Login(req.Pseudo, req.Password) != account.LoginOK {
		d.reply(client, "player/login", statut401, "invalid credentials", nil)
		return
	}
	client.SetPseudo(req.Pseudo)
	if d.state.Presence != nil {
		d.state.Presence.MarkOnline(req.Pseudo)
	}
	d.reply(client, "player/login", statut200, "logged in", nil)
}

func (d *Dispatcher) handleThemesList(client *Client) {
	themes := d.bank.Themes()
	out := make([]map[string]any, len(themes))
	for i, t := range themes {
		out[i] = map[string]any{"id": t.ID, "name": t.Name}
	}
	d.reply(client, "themes/list", statut200, "ok", map[string]any{
		"nbThemes": len(themes),
		"themes":   out,
	})
}

func (d *Dispatcher) handleSessionsList(client *Client) {
	views := d.state.Engine.List()
	out := make([]map[string]any, len(views))
	for i, v := range views {
		out[i] = map[string]any{
			"sessionId":   v.ID,
			"name":        v.Name,
			"mode":        v.Mode,
			"status":      v.Status,
			"difficulty":  v.Difficulty,
			"themeIds":    v.ThemeIDs,
			"nbPlayers":   v.NbPlayers,
			"maxPlayers":  v.MaxPlayers,
			"nbQuestions": v.NbQuestions,
		}
	}
	d.reply(client, "sessions/list", statut200, "ok", map[string]any{
		"sessions": out,
	})
}

func (d *Dispatcher) handleSessionCreate(client *Client, body []byte) {
	const action = "session/create"
	if !requiresAuth(client) {
		d.reply(client, action, statut401, "not authenticated", nil)
		return
	}
	if _, inSession := client.CurrentSessionID(); inSession {
		d.reply(client, action, statut400, "already in a session", nil)
		return
	}

	var req struct {
		Name        string `json:"name"`
		ThemeIDs    []int  `json:"themeIds"`
		Difficulty  string `json:"difficulty"`
		NbQuestions int    `json:"nbQuestions"`
		TimeLimit   int    `json:"timeLimit"`
		Mode        string `json:"mode"`
		MaxPlayers  int    `json:"maxPlayers"`
		Lives       *int   `json:"lives"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		d.reply(client, action, statut400, "malformed body", nil)
		return
	}

	difficulty, ok := question.ParseDifficulty(req.Difficulty)
	if !ok {
		d.reply(client, action, statut400, "unknown difficulty", nil)
		return
	}
	mode, ok := session.ParseMode(req.Mode)
	if !ok {
		d.reply(client, action, statut400, "unknown mode", nil)
		return
	}
	if len(req.ThemeIDs) == 0 {
		d.reply(client, action, statut400, "themeIds required", nil)
		return
	}

	lives := 0
	if mode == session.ModeBattle {
		if req.Lives == nil {
			d.reply(client, action, statut400, "lives required for battle mode", nil)
			return
		}
		lives = *req.Lives
	}

	themeSet := make(map[int]struct{}, len(req.ThemeIDs))
	for _, id := range req.ThemeIDs {
		themeSet[id] = struct{}{}
	}

	result := d.state.Engine.Create(session.CreateParams{
		Name:         req.Name,
		CreatorID:    client.ID,
		ThemeIDs:     themeSet,
		Difficulty:   difficulty,
		NbQuestions:  req.NbQuestions,
		TimeLimit:    req.TimeLimit,
		Mode:         mode,
		InitialLives: lives,
		MaxPlayers:   req.MaxPlayers,
	})

	switch result.Outcome {
	case session.CreateOK:
		// spec.md §4.5.2: the creator is not auto-joined by Create; the
		// dispatcher joins them immediately after.
		joinResult := d.state.Engine.Join(result.SessionID, client.ID, client.Pseudo())
		if joinResult.Outcome != session.JoinOK {
			d.reply(client, action, statut520, "failed to join own session", nil)
			return
		}
		d.reply(client, action, statut201, "session created", map[string]any{
			"sessionId": result.SessionID,
			"isCreator": true,
			"players":   joinResult.Players,
		})
	case session.CreateInsufficientQuestions:
		d.reply(client, action, statut400, "insufficient questions for this theme/difficulty", nil)
	case session.CreateTooManySessions:
		d.reply(client, action, statut403, "too many concurrent sessions", nil)
	default:
		d.reply(client, action, statut400, "invalid session parameters", nil)
	}
}

func (d *Dispatcher) handleSessionJoin(client *Client, body []byte) {
	const action = "session/join"
	if !requiresAuth(client) {
		d.reply(client, action, statut401, "not authenticated", nil)
		return
	}
	if _, inSession := client.CurrentSessionID(); inSession {
		d.reply(client, action, statut400, "already in a session", nil)
		return
	}

	var req struct {
		SessionID int `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		d.reply(client, action, statut400, "malformed body", nil)
		return
	}

	result := d.state.Engine.Join(req.SessionID, client.ID, client.Pseudo())
	switch result.Outcome {
	case session.JoinOK:
		d.reply(client, action, statut200, "joined", map[string]any{
			"players": result.Players,
		})
	case session.JoinNoSuchSession:
		d.reply(client, action, statut404, "unknown session", nil)
	case session.JoinFull:
		d.reply(client, action, statut403, "session full", nil)
	case session.JoinAlreadyMember:
		d.reply(client, action, statut400, "already a member", nil)
	default:
		d.reply(client, action, statut400, "session not joinable", nil)
	}
}

func (d *Dispatcher) handleSessionStart(client *Client) {
	const action = "session/start"
	if !requiresAuth(client) {
		d.reply(client, action, statut401, "not authenticated", nil)
		return
	}
	sid, inSession := client.CurrentSessionID()
	if !inSession {
		d.reply(client, action, statut400, "not in a session", nil)
		return
	}

	result := d.state.Engine.Start(sid, client.ID)
	switch result.Outcome {
	case session.StartOK:
		d.reply(client, action, statut200, "starting", nil)
	case session.StartNotCreator:
		d.reply(client, action, statut403, "only the creator can start", nil)
	case session.StartNotEnoughPlayers:
		d.reply(client, action, statut400, "not enough players", nil)
	case session.StartNotWaiting:
		d.reply(client, action, statut400, "session already started", nil)
	default:
		d.reply(client, action, statut404, "unknown session", nil)
	}
}

func (d *Dispatcher) handleQuestionAnswer(client *Client, body []byte) {
	const action = "question/answer"
	if !requiresAuth(client) {
		d.reply(client, action, statut401, "not authenticated", nil)
		return
	}
	sid, inSession := client.CurrentSessionID()
	if !inSession {
		d.reply(client, action, statut400, "not in a session", nil)
		return
	}

	var req struct {
		Answer       any     `json:"answer"`
		ResponseTime float64 `json:"responseTime"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		d.reply(client, action, statut400, "malformed body", nil)
		return
	}

	ans, ok := parseAnswer(req.Answer)
	if !ok {
		d.reply(client, action, statut400, "malformed answer", nil)
		return
	}

	result := d.state.Engine.Answer(sid, client.ID, ans, req.ResponseTime)
	switch result.Outcome {
	case session.AnswerOK:
		d.reply(client, action, statut200, "answer recorded", nil)
	case session.AnswerEliminated:
		d.reply(client, action, statut400, "eliminated", nil)
	case session.AnswerNotPlaying:
		d.reply(client, action, statut400, "session not playing", nil)
	default:
		d.reply(client, action, statut404, "unknown session", nil)
	}
}

// parseAnswer maps the dynamically-typed JSON "answer" field onto the
// session package's tagged Answer (spec.md §6: "answer may be integer,
// string, or boolean depending on the current question kind").
func parseAnswer(v any) (session.Answer, bool) {
	switch t := v.(type) {
	case float64:
		return session.Answer{Kind: session.AnswerIndex, Index: int(t)}, true
	case string:
		return session.Answer{Kind: session.AnswerText, Text: t}, true
	case bool:
		return session.Answer{Kind: session.AnswerBool, Bool: t}, true
	default:
		return session.Answer{}, false
	}
}

func (d *Dispatcher) handleJokerUse(client *Client, body []byte) {
	const action = "joker/use"
	if !requiresAuth(client) {
		d.reply(client, action, statut401, "not authenticated", nil)
		return
	}
	sid, inSession := client.CurrentSessionID()
	if !inSession {
		d.reply(client, action, statut400, "not in a session", nil)
		return
	}

	var req struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		d.reply(client, action, statut400, "malformed body", nil)
		return
	}
	jk, ok := session.ParseJokerType(req.Type)
	if !ok {
		d.reply(client, action, statut400, "unknown joker type", nil)
		return
	}

	result := d.state.Engine.UseJoker(sid, client.ID, jk)
	switch result.Outcome {
	case session.JokerOK:
		extra := map[string]any{}
		if result.FiftyRemaining != nil {
			extra["remainingAnswers"] = result.FiftyRemaining
		}
		d.reply(client, action, statut200, "joker applied", extra)
	case session.JokerUnavailable:
		d.reply(client, action, statut400, "joker not available", nil)
	case session.JokerNotInSession:
		d.reply(client, action, statut400, "session not playing", nil)
	default:
		d.reply(client, action, statut404, "unknown session", nil)
	}
}
