package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/COAOX/timeline_wars/economy"
	"github.com/COAOX/timeline_wars/event"
	"github.com/COAOX/timeline_wars/game"
	"github.com/COAOX/timeline_wars/skill"
	zecreyface "github.com/Zecrey-Labs/zecrey-marketplace-go-sdk/sdk"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type errorBody struct {
	Code  string `json:"code"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

var kindStatus = map[game.Kind]int{
	game.KindValidation:    http.StatusBadRequest,
	game.KindNotFound:      http.StatusNotFound,
	game.KindStateConflict: http.StatusConflict,
	game.KindEconomic:      http.StatusPaymentRequired,
	game.KindFatal:         http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := game.KindOf(err)
	if kind == game.KindFatal {
		zap.L().Error("api request failed", zap.Error(err))
	}
	writeJSON(w, kindStatus[kind], errorBody{Code: game.CodeOf(err), Kind: kind.String(), Error: err.Error()})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: "VALIDATION", Kind: game.KindValidation.String(), Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, err)
		return false
	}
	return true
}

type healthBody struct {
	Status  string `json:"status"`
	Battles int    `json:"battles"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{Status: "ok", Battles: s.engine.Count()})
}

func listSkills(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, skill.All())
}

type eventType struct {
	Type            event.Type `json:"type"`
	DurationSeconds float64    `json:"duration_seconds"`
}

func listEventTypes(w http.ResponseWriter, _ *http.Request) {
	types := event.Types()
	ret := make([]eventType, 0, len(types))
	for _, t := range types {
		ret = append(ret, eventType{Type: t, DurationSeconds: t.Duration().Seconds()})
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) listMedals(w http.ResponseWriter, r *http.Request) {
	if s.medals == nil {
		http.NotFound(w, r)
		return
	}
	medals, err := s.medals.Medals()
	if err != nil {
		zap.L().Error("list medals", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Code: "MEDALS_UNAVAILABLE", Kind: game.KindFatal.String(), Error: err.Error()})
		return
	}
	if medals == nil {
		medals = []*zecreyface.HauaraNftInfo{}
	}
	writeJSON(w, http.StatusOK, medals)
}

func (s *Server) treasury(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Treasury())
}

// limit reads ?limit=, defaulting to 10.
func limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 10, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		badRequest(w, errors.New("limit must be a positive integer"))
		return 0, false
	}
	return n, true
}

func archiveError(w http.ResponseWriter, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Kind: game.KindNotFound.String(), Error: err.Error()})
		return
	}
	writeError(w, err)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	n, ok := limit(w, r)
	if !ok {
		return
	}
	players, err := s.archive.Top(n)
	if err != nil {
		archiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) archivedBattle(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	m, err := s.archive.Battle(mux.Vars(r)["id"])
	if err != nil {
		archiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) lastWinner(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	m, err := s.archive.LastWinner()
	if err != nil {
		archiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) player(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	p, err := s.archive.Player(mux.Vars(r)["user"])
	if err != nil {
		archiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) payouts(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}
	n, ok := limit(w, r)
	if !ok {
		return
	}
	ps, err := s.archive.Payouts(mux.Vars(r)["user"], n)
	if err != nil {
		archiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) listBattles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.List())
}

type createBody struct {
	Topic        string           `json:"topic"`
	Description  string           `json:"description"`
	FactionA     game.FactionInfo `json:"faction_a"`
	FactionB     game.FactionInfo `json:"faction_b"`
	TotalRounds  int              `json:"total_rounds"`
	RoundSeconds int              `json:"round_seconds"`
}

func (s *Server) createBattle(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if !decode(w, r, &body) {
		return
	}
	snap, err := s.engine.Create(game.CreateRequest{
		Topic:         body.Topic,
		Description:   body.Description,
		FactionA:      body.FactionA,
		FactionB:      body.FactionB,
		TotalRounds:   body.TotalRounds,
		RoundDuration: time.Duration(body.RoundSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getBattle(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.GetState(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) removeBattle(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Remove(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startBattle(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Start(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) endBattle(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.End(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// roundVotes shows the open round as ?viewer= sees it; without a viewer every concealment applies.
func (s *Server) roundVotes(w http.ResponseWriter, r *http.Request) {
	v, err := s.engine.CurrentRoundVotes(mux.Vars(r)["id"], r.URL.Query().Get("viewer"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type voteBody struct {
	User    string         `json:"user"`
	Faction game.FactionID `json:"faction"`
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	var body voteBody
	if !decode(w, r, &body) {
		return
	}
	if err := s.engine.Vote(mux.Vars(r)["id"], body.User, body.Faction); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mintBody struct {
	User            string         `json:"user"`
	Faction         game.FactionID `json:"faction"`
	Role            string         `json:"role"`
	RelevanceScore  int            `json:"relevance_score"`
	StyleMatchScore int            `json:"style_match_score"`
	MintCost        int64          `json:"mint_cost"`
	Media           game.Media     `json:"media"`
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	var body mintBody
	if !decode(w, r, &body) {
		return
	}
	role, ok := economy.ParseRole(body.Role)
	if !ok {
		badRequest(w, errors.New("unknown asset role"))
		return
	}
	a, err := s.engine.MintAsset(r.Context(), game.MintRequest{
		BattleID:        mux.Vars(r)["id"],
		User:            body.User,
		Faction:         body.Faction,
		Role:            role,
		RelevanceScore:  body.RelevanceScore,
		StyleMatchScore: body.StyleMatchScore,
		MintCost:        body.MintCost,
		Media:           body.Media,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type backBody struct {
	User   string `json:"user"`
	Amount int64  `json:"amount"`
}

func (s *Server) back(w http.ResponseWriter, r *http.Request) {
	var body backBody
	if !decode(w, r, &body) {
		return
	}
	vars := mux.Vars(r)
	res, err := s.engine.BackAsset(r.Context(), game.BackRequest{
		BattleID: vars["id"],
		AssetID:  vars["asset"],
		User:     body.User,
		Amount:   body.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type ownerBody struct {
	User   string `json:"user"`
	Amount int    `json:"amount,omitempty"`
}

func (s *Server) ownerOp(w http.ResponseWriter, r *http.Request) {
	var body ownerBody
	if !decode(w, r, &body) {
		return
	}
	vars := mux.Vars(r)
	var (
		a   game.AssetSnapshot
		err error
	)
	switch vars["op"] {
	case "stake":
		a, err = s.engine.StakeAsset(vars["id"], vars["asset"], body.User)
	case "freeze":
		a, err = s.engine.FreezeAsset(vars["id"], vars["asset"], body.User)
	default:
		a, err = s.engine.AccelerateAsset(vars["id"], vars["asset"], body.User, body.Amount)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type castBody struct {
	User     string `json:"user"`
	SkillID  string `json:"skill_id"`
	TargetID string `json:"target_id,omitempty"`
}

func (s *Server) cast(w http.ResponseWriter, r *http.Request) {
	var body castBody
	if !decode(w, r, &body) {
		return
	}
	d, err := s.engine.CastSkill(r.Context(), game.CastRequest{
		BattleID: mux.Vars(r)["id"],
		User:     body.User,
		SkillID:  body.SkillID,
		TargetID: body.TargetID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.engine.Events(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

type triggerBody struct {
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) triggerEvent(w http.ResponseWriter, r *http.Request) {
	var body triggerBody
	if !decode(w, r, &body) {
		return
	}
	t, err := event.ParseType(body.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	ev, err := s.engine.TriggerEvent(r.Context(), mux.Vars(r)["id"], t, body.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) odds(w http.ResponseWriter, r *http.Request) {
	o, err := s.engine.Odds(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) battleBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.engine.Bets(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

type betBody struct {
	User    string         `json:"user"`
	Faction game.FactionID `json:"faction"`
	Amount  int64          `json:"amount"`
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var body betBody
	if !decode(w, r, &body) {
		return
	}
	bet, err := s.engine.PlaceBet(r.Context(), game.BetRequest{
		BattleID: mux.Vars(r)["id"],
		User:     body.User,
		Faction:  body.Faction,
		Amount:   body.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

func (s *Server) betHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.BetHistory(mux.Vars(r)["user"]))
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	bal, err := s.engine.Balance(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "balance": bal})
}

type cooldownBody struct {
	SkillID          string  `json:"skill_id"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

func (s *Server) cooldown(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rem, err := s.engine.CooldownRemaining(vars["user"], vars["skill"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cooldownBody{SkillID: vars["skill"], RemainingSeconds: rem.Seconds()})
}

func (s *Server) effects(w http.ResponseWriter, r *http.Request) {
	effs := s.engine.ActiveEffects(mux.Vars(r)["user"], r.URL.Query().Get("battle"))
	if effs == nil {
		effs = []skill.Effect{}
	}
	writeJSON(w, http.StatusOK, effs)
}
