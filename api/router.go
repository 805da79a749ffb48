// Package api serves the battle engine over plain HTTP for dashboards and operators.
package api

import (
	"github.com/COAOX/timeline_wars/game"
	"github.com/COAOX/timeline_wars/model"
	zecreyface "github.com/Zecrey-Labs/zecrey-marketplace-go-sdk/sdk"
	"github.com/gorilla/mux"
)

// Archive is the persisted history. It is optional; without it the archive routes answer 404.
type Archive interface {
	Player(playerID string) (model.Player, error)
	Top(limit int) ([]model.Player, error)
	Battle(battleID string) (*model.Battle, error)
	LastWinner() (*model.Battle, error)
	Payouts(playerID string, limit int) ([]model.Payout, error)
}

// MedalShelf lists the victory medals minted so far. Optional like Archive.
type MedalShelf interface {
	Medals() ([]*zecreyface.HauaraNftInfo, error)
}

type Server struct {
	engine  *game.Engine
	archive Archive
	medals  MedalShelf
}

type Option func(*Server)

func WithMedals(m MedalShelf) Option {
	return func(s *Server) { s.medals = m }
}

func NewRouter(engine *game.Engine, archive Archive, opts ...Option) *mux.Router {
	s := &Server{engine: engine, archive: archive}
	for _, o := range opts {
		o(s)
	}
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/skills", listSkills).Methods("GET")
	r.HandleFunc("/events", listEventTypes).Methods("GET")
	r.HandleFunc("/medals", s.listMedals).Methods("GET")
	r.HandleFunc("/treasury", s.treasury).Methods("GET")
	r.HandleFunc("/leaderboard", s.leaderboard).Methods("GET")
	r.HandleFunc("/archive/battles/last", s.lastWinner).Methods("GET")
	r.HandleFunc("/archive/battles/{id}", s.archivedBattle).Methods("GET")

	r.HandleFunc("/battles", s.listBattles).Methods("GET")
	r.HandleFunc("/battles", s.createBattle).Methods("POST")
	r.HandleFunc("/battles/{id}", s.getBattle).Methods("GET")
	r.HandleFunc("/battles/{id}", s.removeBattle).Methods("DELETE")
	r.HandleFunc("/battles/{id}/start", s.startBattle).Methods("POST")
	r.HandleFunc("/battles/{id}/end", s.endBattle).Methods("POST")
	r.HandleFunc("/battles/{id}/votes", s.roundVotes).Methods("GET")
	r.HandleFunc("/battles/{id}/votes", s.vote).Methods("POST")
	r.HandleFunc("/battles/{id}/assets", s.mint).Methods("POST")
	r.HandleFunc("/battles/{id}/assets/{asset}/back", s.back).Methods("POST")
	r.HandleFunc("/battles/{id}/assets/{asset}/{op:stake|freeze|accelerate}", s.ownerOp).Methods("POST")
	r.HandleFunc("/battles/{id}/skills", s.cast).Methods("POST")
	r.HandleFunc("/battles/{id}/events", s.listEvents).Methods("GET")
	r.HandleFunc("/battles/{id}/events", s.triggerEvent).Methods("POST")
	r.HandleFunc("/battles/{id}/odds", s.odds).Methods("GET")
	r.HandleFunc("/battles/{id}/bets", s.battleBets).Methods("GET")
	r.HandleFunc("/battles/{id}/bets", s.placeBet).Methods("POST")

	r.HandleFunc("/users/{user}", s.player).Methods("GET")
	r.HandleFunc("/users/{user}/payouts", s.payouts).Methods("GET")
	r.HandleFunc("/users/{user}/balance", s.balance).Methods("GET")
	r.HandleFunc("/users/{user}/cooldowns/{skill}", s.cooldown).Methods("GET")
	r.HandleFunc("/users/{user}/effects", s.effects).Methods("GET")
	r.HandleFunc("/users/{user}/bets", s.betHistory).Methods("GET")

	return r
}
